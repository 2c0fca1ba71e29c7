package privacy

import (
	"fmt"
	"strings"
)

const (
	treeIndent   = "    "
	treeMaxDepth = 10
)

// AnonymisationTree renders the anonymisation graph rooted at a registered
// type as an indented listing. Plain fields print bare; relation fields name
// their target type and recurse into its descriptor. Useful for eyeballing
// descriptor configuration and spotting loops before running the engine.
func (r *Registry) AnonymisationTree(name string) string {
	var b strings.Builder
	b.WriteString(name + ":\n")
	r.writeTree(&b, name, "", 0)
	return b.String()
}

func (r *Registry) writeTree(b *strings.Builder, name, prefix string, level int) {
	if level > treeMaxDepth {
		fmt.Fprintf(b, "ERROR: shouldn't go %d levels deep, check for loops.\n", treeMaxDepth)
		return
	}
	d, ok := r.DescriptorFor(name)
	if !ok {
		return
	}
	for _, field := range d.AnonymiseFields() {
		class, _ := d.class(field)
		switch class {
		case classPlain:
			fmt.Fprintf(b, "%s|-> %s\n", prefix, field)
		case classFK:
			f, _ := d.entity.Field(field)
			fmt.Fprintf(b, "%s|-> %s = (%s [fk]):\n", prefix, field, f.RelatedType)
			r.writeTree(b, f.RelatedType, prefix+treeIndent, level+1)
		case classSet:
			related := ""
			if f, ok := d.entity.Field(field); ok {
				related = f.RelatedType
			} else if rel, ok := d.entity.ReverseRelation(field); ok {
				related = rel.RelatedType
			}
			fmt.Fprintf(b, "%s|-> %s = (%s [set_field]):\n", prefix, field, related)
			r.writeTree(b, related, prefix+treeIndent, level+1)
		}
	}
}
