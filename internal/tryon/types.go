package tryon

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Snogger/ai-hairstyle-plugin/internal/gemini"
)

// Angle is one of the four fixed camera perspectives a preview is
// generated for.
type Angle string

const (
	AngleFront Angle = "front"
	AngleBack  Angle = "back"
	AngleLeft  Angle = "left"
	AngleRight Angle = "right"
)

// Angles returns the fixed evaluation order.
func Angles() []Angle {
	return []Angle{AngleFront, AngleBack, AngleLeft, AngleRight}
}

func ParseAngle(value string) (Angle, bool) {
	switch Angle(strings.ToLower(strings.TrimSpace(value))) {
	case AngleFront:
		return AngleFront, true
	case AngleBack:
		return AngleBack, true
	case AngleLeft:
		return AngleLeft, true
	case AngleRight:
		return AngleRight, true
	}
	return "", false
}

// ReferenceSet maps each angle to the catalog hairstyle's stored photo at
// that angle. Missing angles are simply absent.
type ReferenceSet map[Angle]gemini.Blob

// Request is one generation job: a style, a target color, and 1-4 photos
// of the user.
type Request struct {
	StyleID    int64
	Color      string
	UserImages []gemini.Blob
}

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

var (
	ErrNoImages        = errors.New("at least one user image is required")
	ErrTooManyImages   = errors.New("at most four user images are allowed")
	ErrInvalidColor    = errors.New("color must match #RRGGBB")
	ErrStyleNotFound   = errors.New("hairstyle not found")
	ErrAllAnglesFailed = errors.New("all angles failed")
)

// Validate rejects malformed requests before any external call is made.
func (r Request) Validate() error {
	switch {
	case len(r.UserImages) == 0:
		return ErrNoImages
	case len(r.UserImages) > 4:
		return ErrTooManyImages
	case !colorPattern.MatchString(r.Color):
		return ErrInvalidColor
	}
	for _, img := range r.UserImages {
		if len(img.Data) == 0 {
			return ErrNoImages
		}
	}
	return nil
}

// normalizedImages pads the upload list to one image per angle, falling
// back to the first upload for absent slots.
func (r Request) normalizedImages() []gemini.Blob {
	out := make([]gemini.Blob, len(Angles()))
	for i := range out {
		if i < len(r.UserImages) && len(r.UserImages[i].Data) > 0 {
			out[i] = r.UserImages[i]
			continue
		}
		out[i] = r.UserImages[0]
	}
	return out
}

type FailureKind string

const (
	MissingReference        FailureKind = "missing_reference"
	DescribeUserFailed      FailureKind = "describe_user_failed"
	DescribeReferenceFailed FailureKind = "describe_reference_failed"
	SynthesizeFailed        FailureKind = "synthesize_failed"
	StoreFailed             FailureKind = "store_failed"
)

type Failure struct {
	Kind    FailureKind
	Message string
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Outcome is the per-angle result: a blob store key on success, a Failure
// otherwise.
type Outcome struct {
	Key     string
	Failure *Failure
}

func (o Outcome) OK() bool { return o.Failure == nil }

// Result is the per-angle outcome map for one request. The request as a
// whole failed only when every angle did.
type Result struct {
	Outcomes map[Angle]Outcome
	Failed   int
	APICalls int
}

func (r Result) AllFailed() bool {
	return r.Failed == len(Angles())
}
