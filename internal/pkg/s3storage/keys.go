package s3storage

import (
	"fmt"
	"time"
)

// Key layout: <kind>/YYYY/MM/<uuid><ext>
const (
	KindOriginal  = "originals"
	KindGenerated = "generated"
	KindPreview   = "previews"
)

// ObjectKey generates a standardized object key for an image.
func ObjectKey(kind, imageUUID, ext string, at time.Time) string {
	return fmt.Sprintf("%s/%04d/%02d/%s%s", kind, at.Year(), int(at.Month()), imageUUID, ext)
}
