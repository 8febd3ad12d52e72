package hri

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// NumFacialLandmarks is number of facial landmarks carried by a landmarks update
const NumFacialLandmarks = 70

// NumSkeletonPoints is number of 2D skeleton keypoints
const NumSkeletonPoints = 18

// Wire messages. Field names follow sensor_msgs / hri_msgs so that bridges
// from other middlewares map one to one.

// RegionOfInterestMsg is the wire form of a region of interest update
type RegionOfInterestMsg struct {
	XOffset   uint32 `cbor:"x_offset"`
	YOffset   uint32 `cbor:"y_offset"`
	Height    uint32 `cbor:"height"`
	Width     uint32 `cbor:"width"`
	DoRectify bool   `cbor:"do_rectify,omitempty"`
}

// ImageMsg is the wire form of an image update
type ImageMsg struct {
	StampNanos  int64  `cbor:"stamp"`
	Height      uint32 `cbor:"height"`
	Width       uint32 `cbor:"width"`
	Encoding    string `cbor:"encoding"`
	IsBigEndian bool   `cbor:"is_bigendian,omitempty"`
	Step        uint32 `cbor:"step"`
	Data        []byte `cbor:"data"`
}

// PointOfInterestMsg is a normalized 2D point with confidence
type PointOfInterestMsg struct {
	X float32 `cbor:"x"`
	Y float32 `cbor:"y"`
	C float32 `cbor:"c"`
}

// FacialLandmarksMsg is the wire form of a facial landmarks update
type FacialLandmarksMsg struct {
	Landmarks []PointOfInterestMsg `cbor:"landmarks"`
	Height    uint32               `cbor:"height"`
	Width     uint32               `cbor:"width"`
}

// Skeleton2DMsg is the wire form of a skeleton update
type Skeleton2DMsg struct {
	Skeleton []PointOfInterestMsg `cbor:"skeleton"`
}

// SoftBiometricsMsg is the wire form of a soft biometrics update
type SoftBiometricsMsg struct {
	Age              float32 `cbor:"age"`
	AgeConfidence    float32 `cbor:"age_confidence"`
	Gender           uint8   `cbor:"gender"`
	GenderConfidence float32 `cbor:"gender_confidence"`
}

// IdsListMsg lists ids of currently tracked features
type IdsListMsg struct {
	Ids []string `cbor:"ids"`
}

// Decoded attribute values.

// Image is an independent copy of a received image
type Image struct {
	Stamp     time.Time
	Width     int
	Height    int
	Encoding  string
	BigEndian bool
	Step      int
	Data      []byte
}

// PointOfInterest is normalized (0..1) image point with confidence
type PointOfInterest struct {
	X float64
	Y float64
	C float64
}

// Landmark is a facial landmark
type Landmark = PointOfInterest

// SkeletonPoint is a skeleton keypoint
type SkeletonPoint = PointOfInterest

// FacialLandmarks holds fixed set of landmarks. Landmarks missing from an
// update are left zeroed.
type FacialLandmarks struct {
	Points [NumFacialLandmarks]Landmark
	Width  int
	Height int
}

// Gender is a discrete gender category
type Gender uint8

const (
	// GenderUndefined is reserved and never returned by Face.Gender
	GenderUndefined Gender = iota
	Female
	Male
	Other
)

func (g Gender) String() string {
	switch g {
	case Female:
		return "female"
	case Male:
		return "male"
	case Other:
		return "other"
	default:
		return "undefined"
	}
}

// SoftBiometrics is a soft-biometric estimate
type SoftBiometrics struct {
	Age              float64
	AgeConfidence    float64
	Gender           Gender
	GenderConfidence float64
}

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("hri: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("hri: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeMessage encodes wire message to CBOR (used by producers and bridges)
func EncodeMessage(msg any) ([]byte, error) {
	data, err := encMode.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "Can't encode message")
	}
	return data, nil
}

func decodeMessage(payload []byte, msg any, kind string) error {
	if len(payload) == 0 {
		return errors.Wrapf(ErrMalformedUpdate, "empty %s payload", kind)
	}
	if err := decMode.Unmarshal(payload, msg); err != nil {
		return errors.Wrapf(ErrMalformedUpdate, "can't decode %s: %v", kind, err)
	}
	return nil
}

// DecodeRegionOfInterest decodes region of interest update
func DecodeRegionOfInterest(payload []byte) (Rectangle, error) {
	var msg RegionOfInterestMsg
	if err := decodeMessage(payload, &msg, "region of interest"); err != nil {
		return Rectangle{}, err
	}
	return NewRect(float64(msg.XOffset), float64(msg.YOffset), float64(msg.Width), float64(msg.Height)), nil
}

// DecodeImage decodes image update. Returned image never shares memory with
// payload or with any other decoded image.
func DecodeImage(payload []byte) (Image, error) {
	var msg ImageMsg
	if err := decodeMessage(payload, &msg, "image"); err != nil {
		return Image{}, err
	}
	if msg.Encoding == "" {
		return Image{}, errors.Wrap(ErrMalformedUpdate, "image without encoding")
	}
	if need := uint64(msg.Step) * uint64(msg.Height); uint64(len(msg.Data)) < need {
		return Image{}, errors.Wrapf(ErrMalformedUpdate, "image data is %d bytes, expected at least %d", len(msg.Data), need)
	}
	if msg.Height > 0 && msg.Step == 0 {
		return Image{}, errors.Wrap(ErrMalformedUpdate, "image with zero step")
	}
	data := make([]byte, len(msg.Data))
	copy(data, msg.Data)
	img := Image{
		Width:     int(msg.Width),
		Height:    int(msg.Height),
		Encoding:  msg.Encoding,
		BigEndian: msg.IsBigEndian,
		Step:      int(msg.Step),
		Data:      data,
	}
	if msg.StampNanos != 0 {
		img.Stamp = time.Unix(0, msg.StampNanos)
	}
	return img, nil
}

// DecodeFacialLandmarks decodes facial landmarks update. Landmarks beyond
// NumFacialLandmarks are ignored.
func DecodeFacialLandmarks(payload []byte) (FacialLandmarks, error) {
	var msg FacialLandmarksMsg
	if err := decodeMessage(payload, &msg, "facial landmarks"); err != nil {
		return FacialLandmarks{}, err
	}
	out := FacialLandmarks{
		Width:  int(msg.Width),
		Height: int(msg.Height),
	}
	for i, landmark := range msg.Landmarks {
		if i >= NumFacialLandmarks {
			break
		}
		out.Points[i] = fromPointMsg(landmark)
	}
	return out, nil
}

// DecodeSkeleton2D decodes skeleton update
func DecodeSkeleton2D(payload []byte) ([]SkeletonPoint, error) {
	var msg Skeleton2DMsg
	if err := decodeMessage(payload, &msg, "skeleton"); err != nil {
		return nil, err
	}
	out := make([]SkeletonPoint, len(msg.Skeleton))
	for i, point := range msg.Skeleton {
		out[i] = fromPointMsg(point)
	}
	return out, nil
}

// DecodeSoftBiometrics decodes soft biometrics update
func DecodeSoftBiometrics(payload []byte) (SoftBiometrics, error) {
	var msg SoftBiometricsMsg
	if err := decodeMessage(payload, &msg, "soft biometrics"); err != nil {
		return SoftBiometrics{}, err
	}
	return SoftBiometrics{
		Age:              float64(msg.Age),
		AgeConfidence:    float64(msg.AgeConfidence),
		Gender:           Gender(msg.Gender),
		GenderConfidence: float64(msg.GenderConfidence),
	}, nil
}

// DecodeIdsList decodes list of tracked ids
func DecodeIdsList(payload []byte) ([]string, error) {
	var msg IdsListMsg
	if err := decodeMessage(payload, &msg, "ids list"); err != nil {
		return nil, err
	}
	return msg.Ids, nil
}

func fromPointMsg(msg PointOfInterestMsg) PointOfInterest {
	return PointOfInterest{
		X: float64(msg.X),
		Y: float64(msg.Y),
		C: float64(msg.C),
	}
}
