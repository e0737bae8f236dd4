// Package manifest declares commands and frame items in YAML.
//
// A manifest names each command's parameters and return value with their
// types and attribute metadata, and lists the items of the frame snapshot.
// It yields command descriptors, FunctionSignature stores and the frame
// layout, and registers handlers on an engine against the declarations.
package manifest

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/command"
	"github.com/motionsense/sense-go/pkg/frame"
	"github.com/motionsense/sense-go/pkg/typeinfo"
	"github.com/motionsense/sense-go/pkg/value"
)

//go:embed manifests/*.yaml
var manifestFS embed.FS

// Manifest errors.
var (
	ErrInvalidManifest = errors.New("invalid manifest")
	ErrNoHandler       = errors.New("no handler for declared command")
	ErrUndeclared      = errors.New("handler for undeclared command")
)

func init() {
	// Element types of common frame items, so manifests can name them.
	typeinfo.Of[[]uint16]()
	typeinfo.Of[[]int16]()
	typeinfo.Of[[]int32]()
	typeinfo.Of[[]float32]()
	typeinfo.Of[[]float64]()
}

// Manifest is the root of a manifest file.
type Manifest struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Commands    []CommandDecl `yaml:"commands"`
	Frame       []ValueDecl   `yaml:"frame"`
}

// CommandDecl declares one command. A missing Returns declares a void
// command.
type CommandDecl struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Params      []ValueDecl `yaml:"params"`
	Returns     *ValueDecl  `yaml:"returns"`
}

// ValueDecl declares a parameter, return value or frame item.
type ValueDecl struct {
	Name string    `yaml:"name"`
	Type string    `yaml:"type"`
	Meta *MetaDecl `yaml:"meta"`
}

// MetaDecl declares the attribute store of a value. Default, Min and Max
// are decoded into the value's type.
type MetaDecl struct {
	Class   string                `yaml:"class"`
	Default yaml.Node             `yaml:"default"`
	Min     yaml.Node             `yaml:"min"`
	Max     yaml.Node             `yaml:"max"`
	Enum    []attribute.EnumEntry `yaml:"enum"`

	// Image metadata.
	Sizer    string     `yaml:"sizer"`
	Width    int        `yaml:"width"`
	Height   int        `yaml:"height"`
	Source   string     `yaml:"source"`
	Relation string     `yaml:"relation"`
	Range    *ValueDecl `yaml:"range"`
}

var classNames = map[string]attribute.Class{
	"plain":   attribute.ClassPlain,
	"default": attribute.ClassDefaultValued,
	"ranged":  attribute.ClassRanged,
	"enum":    attribute.ClassEnumMapped,
	"image":   attribute.ClassImageLike,
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

var loadDemo = sync.OnceValues(func() (*Manifest, error) {
	data, err := manifestFS.ReadFile("manifests/demo.yaml")
	if err != nil {
		return nil, err
	}
	return Parse(data)
})

// Demo returns the embedded demo manifest. Callers must not modify it.
func Demo() (*Manifest, error) {
	return loadDemo()
}

// Validate checks names and builds every descriptor and store once.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool)
	for i := range m.Commands {
		c := &m.Commands[i]
		if c.Name == "" {
			return fmt.Errorf("%w: command %d has no name", ErrInvalidManifest, i)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate command %q", ErrInvalidManifest, c.Name)
		}
		seen[c.Name] = true
		if _, err := c.MetaInfo(); err != nil {
			return err
		}
	}
	if _, err := m.FrameLayout(); err != nil {
		return err
	}
	for _, it := range m.Frame {
		if _, err := it.Store(); err != nil {
			return fmt.Errorf("%w: frame item %s: %v", ErrInvalidManifest, it.Name, err)
		}
	}
	return nil
}

// Command returns the declaration of name.
func (m *Manifest) Command(name string) (*CommandDecl, bool) {
	for i := range m.Commands {
		if m.Commands[i].Name == name {
			return &m.Commands[i], true
		}
	}
	return nil, false
}

// FrameLayout returns the snapshot layout in declaration order.
func (m *Manifest) FrameLayout() ([]frame.Item, error) {
	items := make([]frame.Item, len(m.Frame))
	for i, d := range m.Frame {
		t, err := d.TypeInfo()
		if err != nil {
			return nil, fmt.Errorf("%w: frame item %d: %v", ErrInvalidManifest, i, err)
		}
		items[i] = frame.Item{Name: d.Name, Type: t}
	}
	if _, err := frame.New(items...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return items, nil
}

// FrameMeta returns the attribute store of the named frame item.
func (m *Manifest) FrameMeta(name string) (*attribute.Store, error) {
	for _, d := range m.Frame {
		if d.Name == name {
			return d.Store()
		}
	}
	return nil, fmt.Errorf("no frame item %q", name)
}

// Descriptor returns the command's signature.
func (c *CommandDecl) Descriptor() (command.Descriptor, error) {
	ret := typeinfo.VoidType
	if c.Returns != nil {
		t, err := c.Returns.TypeInfo()
		if err != nil {
			return command.Descriptor{}, fmt.Errorf("%w: %s returns: %v", ErrInvalidManifest, c.Name, err)
		}
		ret = t
	}
	params := make([]typeinfo.TypeInfo, len(c.Params))
	for i, p := range c.Params {
		t, err := p.TypeInfo()
		if err != nil {
			return command.Descriptor{}, fmt.Errorf("%w: %s parameter %d: %v", ErrInvalidManifest, c.Name, i, err)
		}
		params[i] = t
	}
	return command.NewDescriptor(ret, params...), nil
}

// MetaInfo builds the command's FunctionSignature store.
func (c *CommandDecl) MetaInfo() (*attribute.Store, error) {
	if _, err := c.Descriptor(); err != nil {
		return nil, err
	}
	var ret *attribute.Store
	if c.Returns != nil {
		s, err := c.Returns.Store()
		if err != nil {
			return nil, fmt.Errorf("%w: %s returns: %v", ErrInvalidManifest, c.Name, err)
		}
		ret = s
	}
	b := attribute.NewFunctionBuilder(ret)
	for i, p := range c.Params {
		s, err := p.Store()
		if err != nil {
			return nil, fmt.Errorf("%w: %s parameter %d: %v", ErrInvalidManifest, c.Name, i, err)
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("p%d", i)
		}
		b.AppendParameter(name, s)
	}
	s, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, c.Name, err)
	}
	return s, nil
}

// TypeInfo resolves the declared type name.
func (d *ValueDecl) TypeInfo() (typeinfo.TypeInfo, error) {
	if d.Type == "" {
		return typeinfo.Unknown, errors.New("missing type")
	}
	t := typeinfo.Lookup(d.Type)
	if t.IsUnknown() {
		return typeinfo.Unknown, fmt.Errorf("unknown type %q", d.Type)
	}
	return t, nil
}

// Store builds the value's attribute store. A value without meta gets a
// plain store.
func (d *ValueDecl) Store() (*attribute.Store, error) {
	t, err := d.TypeInfo()
	if err != nil {
		return nil, err
	}
	if d.Meta == nil {
		return attribute.NewPlain(t), nil
	}
	return d.Meta.build(t)
}

func (md *MetaDecl) build(t typeinfo.TypeInfo) (*attribute.Store, error) {
	class, ok := classNames[md.Class]
	if !ok {
		c, err := attribute.ParseClass(md.Class)
		if err != nil {
			return nil, err
		}
		class = c
	}
	if class == attribute.ClassFunctionSignature {
		return nil, errors.New("function signatures are declared as commands")
	}

	s, err := attribute.New(class, t, 0)
	if err != nil {
		return nil, err
	}
	set := func(attr string, v value.TypedValue) {
		if err == nil {
			err = s.Set(attr, v)
		}
	}
	scalar := func(attr string, n *yaml.Node) {
		if err != nil || n.Kind == 0 {
			return
		}
		var v value.TypedValue
		if v, err = decodeAs(n, t); err == nil {
			set(attr, v)
		} else {
			err = fmt.Errorf("%s: %w", attr, err)
		}
	}

	switch class {
	case attribute.ClassDefaultValued, attribute.ClassRanged, attribute.ClassEnumMapped:
		scalar(attribute.DefaultValue, &md.Default)
		if class == attribute.ClassRanged {
			scalar(attribute.RangeMin, &md.Min)
			scalar(attribute.RangeMax, &md.Max)
		}
		if class == attribute.ClassEnumMapped {
			var m *attribute.EnumMapper
			if m, err = attribute.NewEnumMapper(md.Enum...); err == nil {
				set(attribute.EnumMapperAttr, value.New(m))
			}
		}

	case attribute.ClassImageLike:
		var sizer attribute.ImageSizer
		if sizer.Mode, err = parseSizer(md.Sizer); err != nil {
			return nil, err
		}
		sizer.Width, sizer.Height = md.Width, md.Height
		var rel attribute.PixelRelation
		if rel, err = parseRelation(md.Relation); err != nil {
			return nil, err
		}
		set(attribute.ImageSizerAttr, value.New(sizer))
		set(attribute.SourceSizeImageType, value.New(md.Source))
		set(attribute.PixelRelationAttr, value.New(rel))
		if md.Range != nil {
			rs, rerr := md.Range.Store()
			if rerr != nil {
				return nil, fmt.Errorf("range: %w", rerr)
			}
			set(attribute.RangeMetaInfo, value.New(rs))
		}
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// decodeAs decodes a YAML scalar into a fresh value of type t.
func decodeAs(n *yaml.Node, t typeinfo.TypeInfo) (value.TypedValue, error) {
	rt := t.ReflectType()
	if rt == nil {
		return value.TypedValue{}, fmt.Errorf("type %s cannot be decoded", t)
	}
	p := reflect.New(rt)
	if err := n.Decode(p.Interface()); err != nil {
		return value.TypedValue{}, err
	}
	return value.View(p.Interface(), t, true)
}

func parseSizer(s string) (attribute.SizerMode, error) {
	if s == "" {
		return attribute.SizerIdentity, nil
	}
	for m := attribute.SizerIdentity; m <= attribute.SizerCustom; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown image sizer %q", s)
}

func parseRelation(s string) (attribute.PixelRelation, error) {
	if s == "" {
		return attribute.PixelUnrelated, nil
	}
	for r := attribute.PixelUnrelated; r <= attribute.PixelScaled; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown pixel relation %q", s)
}
