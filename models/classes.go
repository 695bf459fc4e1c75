package models

import (
	"image/color"

	"github.com/pkg/errors"
)

// ErrUnknownClassSet is returned when a style has not been registered.
var ErrUnknownClassSet = errors.New("class set not registered")

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
	// The display color used by renderers.
	Color color.RGBA
}

// OutputClassSet ties a style to its full, ordered list of labels.
type OutputClassSet struct {
	// Class set identifier.
	Style ModelFamily
	// Classes ordered by model output index.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// palette holds the reference rendering colors, one per VOC class, clamped to
// [0, 255]. The source table is in BGR order.
var palette = []color.RGBA{
	bgr(254, 254, 254),
	bgr(239, 211, 127),
	bgr(225, 169, 0),
	bgr(211, 127, 254),
	bgr(197, 84, 127),
	bgr(183, 42, 0),
	bgr(169, 0, 254),
	bgr(155, 0, 127),
	bgr(141, 0, 0),
	bgr(127, 254, 254),
	bgr(112, 211, 127),
	bgr(98, 169, 0),
	bgr(84, 127, 254),
	bgr(70, 84, 127),
	bgr(56, 42, 0),
	bgr(42, 0, 254),
	bgr(28, 0, 127),
	bgr(14, 0, 0),
	bgr(0, 254, 254),
	bgr(0, 211, 127),
}

func bgr(b, g, r uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// PaletteColor returns the rendering color for a class index. Indices past
// the palette wrap around; negative indices map to the first color.
func PaletteColor(idx int) color.RGBA {
	if idx < 0 {
		return palette[0]
	}
	return palette[idx%len(palette)]
}

// NewOutputClassSet builds a class set from ordered names, assigning palette
// colors by index.
//
// Arguments:
//   - style: The class set identifier.
//   - names: The labels in model output order.
//
// Returns:
//   - The class set with its name index built.
func NewOutputClassSet(style ModelFamily, names []string) OutputClassSet {
	classes := make([]OutputClass, len(names))
	for i, name := range names {
		classes[i] = OutputClass{Index: i, Name: name, Color: PaletteColor(i)}
	}
	set := OutputClassSet{Style: style, Classes: classes}
	set.BuildNameIndexMap()
	return set
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// Len returns the number of classes.
func (s OutputClassSet) Len() int {
	return len(s.Classes)
}

// Names returns the labels in output order.
func (s OutputClassSet) Names() []string {
	names := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		names[i] = c.Name
	}
	return names
}

// Name returns the label for an index, or an empty string when out of range.
func (s OutputClassSet) Name(idx int) string {
	if idx < 0 || idx >= len(s.Classes) {
		return ""
	}
	return s.Classes[idx].Name
}

// Color returns the display color for an index, falling back to the palette
// when the index is out of range.
func (s OutputClassSet) Color(idx int) color.RGBA {
	if idx < 0 || idx >= len(s.Classes) {
		return PaletteColor(idx)
	}
	return s.Classes[idx].Color
}

// Index returns the class index for a name.
func (s OutputClassSet) Index(name string) (int, bool) {
	if s.nameToIdx != nil {
		idx, ok := s.nameToIdx[name]
		return idx, ok
	}
	for _, c := range s.Classes {
		if c.Name == name {
			return c.Index, true
		}
	}
	return -1, false
}

// ClassManager holds all registered class sets.
type ClassManager struct {
	sets map[ModelFamily]*OutputClassSet
}

// NewClassManager initializes and registers the given sets.
func NewClassManager(allSets ...OutputClassSet) *ClassManager {
	mgr := &ClassManager{sets: make(map[ModelFamily]*OutputClassSet)}
	for _, set := range allSets {
		mgr.Register(set)
	}
	return mgr
}

// Register adds or replaces the set for its style.
func (m *ClassManager) Register(set OutputClassSet) {
	set.BuildNameIndexMap()
	m.sets[set.Style] = &set
}

// Get returns the set registered for a style.
func (m *ClassManager) Get(style ModelFamily) (OutputClassSet, error) {
	set, ok := m.sets[style]
	if !ok {
		return OutputClassSet{}, errors.Wrapf(ErrUnknownClassSet, "style %q", style)
	}
	return *set, nil
}

// GetName returns the class name for a given style and index.
func (m *ClassManager) GetName(style ModelFamily, idx int) (string, error) {
	set, ok := m.sets[style]
	if !ok {
		return "", errors.Wrapf(ErrUnknownClassSet, "style %q", style)
	}
	if idx < 0 || idx >= len(set.Classes) {
		return "", errors.Errorf("index %d out of range for style %q", idx, style)
	}
	return set.Classes[idx].Name, nil
}

// GetIndex returns the class index for a given style and name.
func (m *ClassManager) GetIndex(style ModelFamily, name string) (int, error) {
	set, ok := m.sets[style]
	if !ok {
		return -1, errors.Wrapf(ErrUnknownClassSet, "style %q", style)
	}
	idx, ok := set.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found in style %q", name, style)
	}
	return idx, nil
}

// MapClass maps an index from one style to another, returning the target OutputClass.
func (m *ClassManager) MapClass(fromStyle ModelFamily, idx int, toStyle ModelFamily) (OutputClass, error) {
	name, err := m.GetName(fromStyle, idx)
	if err != nil {
		return OutputClass{}, err
	}
	toIdx, err := m.GetIndex(toStyle, name)
	if err != nil {
		return OutputClass{}, err
	}
	set := m.sets[toStyle]
	return set.Classes[toIdx], nil
}

// PascalVOCClasses is the 20 Pascal VOC classes, zero-based, as Tiny YOLOv2
// VOC emits them.
var PascalVOCClasses = NewOutputClassSet(ModelFamilyVOC, []string{
	"aeroplane",
	"bicycle",
	"bird",
	"boat",
	"bottle",
	"bus",
	"car",
	"cat",
	"chair",
	"cow",
	"diningtable",
	"dog",
	"horse",
	"motorbike",
	"person",
	"pottedplant",
	"sheep",
	"sofa",
	"train",
	"tvmonitor",
})

// COCOClasses is the 80 COCO classes in darknet order (no background).
// YOLOv2 COCO models index directly into this zero-based list.
var COCOClasses = NewOutputClassSet(ModelFamilyCOCO, []string{
	"person", "bicycle", "car", "motorbike", "aeroplane", "bus", "train", "truck", "boat", "traffic light",
	"fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "sofa", "pottedplant", "bed",
	"diningtable", "toilet", "tvmonitor", "laptop", "mouse", "remote", "keyboard", "cell phone", "microwave", "oven",
	"toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
})

// AllClassSets collects every built-in OutputClassSet in one place.
var AllClassSets = []OutputClassSet{
	PascalVOCClasses,
	COCOClasses,
}

// DefaultClassManager has every built-in set registered.
var DefaultClassManager = NewClassManager(AllClassSets...)

// LookupClassSet returns the built-in class set for a style.
func LookupClassSet(style ModelFamily) (OutputClassSet, bool) {
	set, err := DefaultClassManager.Get(style)
	return set, err == nil
}

// LookupName returns the class name for a given style and index.
// If the style is unknown or the index is out of range, it returns an empty string.
func LookupName(style ModelFamily, idx int) string {
	set, ok := LookupClassSet(style)
	if !ok {
		return ""
	}
	return set.Name(idx)
}
