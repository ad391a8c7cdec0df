// Package scene holds the systems that act on the scene graph rather than on
// a single property: attaching components to animated parents, forcing
// animated components movable, and offsetting root transforms by a per
// instance origin.
package scene

import (
	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/object"
)

// Attachment attaches the bound object's scene component to the first object
// of another binding while the entity is linked.
type Attachment struct {
	ParentBinding string
	AttachRule    object.AttachmentRule
	DetachRule    object.AttachmentRule
}

// Components are the scene component types of a linker.
type Components struct {
	Attach ms.ComponentType[Attachment]
}

// RegisterComponents registers the scene components on a linker. It is
// idempotent.
func RegisterComponents(l *ms.Linker) *Components {
	return ms.GetOrAddExtension(&l.Extensions, func() *Components {
		return &Components{
			Attach: ms.NewComponentType[Attachment](l.Registry, "Attachment", ms.FlagCopyToChildren),
		}
	})
}
