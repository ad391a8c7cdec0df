package scene

import (
	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/tracks"
)

// AttachSection attaches the track's object to another binding for its range.
type AttachSection struct {
	tracks.SectionBase
	Attachment Attachment
}

// ImportEntity adds the attachment component.
func (s *AttachSection) ImportEntity(l *ms.Linker, _ tracks.ImportParams, out *tracks.ImportedEntity) {
	c := RegisterComponents(l)
	ms.With(out.Builder, c.Attach, s.Attachment)
}
