package models

import "time"

// ImageKind classifies an uploaded photograph within a monitoring pair.
type ImageKind string

const (
	ImageKindBaseline   ImageKind = "baseline"
	ImageKindCurrent    ImageKind = "current"
	ImageKindDifference ImageKind = "difference"
)

func (k ImageKind) Valid() bool {
	switch k {
	case ImageKindBaseline, ImageKindCurrent, ImageKindDifference:
		return true
	}
	return false
}

// Image is the catalog record for one stored photograph. The bytes live in
// the object store under ObjectKey; everything here is metadata. Records are
// immutable after creation except ComparisonID, which is backfilled once a
// comparison consumes the image.
type Image struct {
	ID                 string
	ObjectKey          string
	Kind               ImageKind
	Location           string
	StructureComponent string
	Filename           string
	ContentType        string
	SizeBytes          int64
	CaptureDate        *time.Time
	Camera             string
	Notes              string
	ComparisonID       *string
	UploadedAt         time.Time
}

// ImageFilter narrows catalog list queries. Zero values mean "any".
type ImageFilter struct {
	Kind               ImageKind
	Location           string
	StructureComponent string
}
