package moviescene

// NumDoubleChannels is the number of scalar composite channels an entity can
// carry (enough for a 9-channel transform).
const NumDoubleChannels = 9

// InstanceHandle identifies the sequence instance that imported an entity.
type InstanceHandle uint32

// PropertyBinding names the animated property of a bound object. Path is the
// field path used for resolution, Name a display name.
type PropertyBinding struct {
	Name string
	Path string
}

// InterrogationKey identifies one sample of an interrogation channel.
type InterrogationKey struct {
	Channel int
	Index   int
}

// DoubleSource produces a scalar value at a time. ok is false when the source
// has no data, in which case the result is left untouched.
type DoubleSource interface {
	Evaluate(t float64) (v float64, ok bool)
}

// BoolSource produces a boolean value at a time.
type BoolSource interface {
	EvaluateBool(t float64) (v bool, ok bool)
}

// BuiltInComponents are the component types shared by every system.
type BuiltInComponents struct {
	// Structural tags.
	NeedsLink      TagType
	NeedsUnlink    TagType
	Finished       TagType
	ImportedEntity TagType
	Ignored        TagType

	// Pre-animated state policy.
	RestoreState          TagType
	CachePreAnimatedValue TagType

	// Blend types. Absolute is the default when none is present.
	AbsoluteBlend         TagType
	RelativeBlend         TagType
	AdditiveBlend         TagType
	AdditiveFromBaseBlend TagType

	BoundObject      ComponentType[any]
	ObjectBinding    ComponentType[string]
	ParentEntity     ComponentType[Entity]
	InstanceHandle   ComponentType[InstanceHandle]
	EvalTime         ComponentType[float64]
	PropertyBinding  ComponentType[PropertyBinding]
	HierarchicalBias ComponentType[int16]

	DoubleChannel     [NumDoubleChannels]ComponentType[DoubleSource]
	DoubleResult      [NumDoubleChannels]ComponentType[float64]
	BaseDouble        [NumDoubleChannels]ComponentType[float64]
	BaseValueEvalTime ComponentType[float64]

	BoolChannel ComponentType[BoolSource]
	BoolResult  ComponentType[bool]

	WeightChannel         ComponentType[DoubleSource]
	WeightAndEasingResult ComponentType[float64]

	BlendChannelInput  ComponentType[uint16]
	BlendChannelOutput ComponentType[uint16]

	Interrogation ComponentType[InterrogationKey]
}

var channelNames = [NumDoubleChannels]string{"0", "1", "2", "3", "4", "5", "6", "7", "8"}

// NewBuiltInComponents registers the built-in component types into r.
func NewBuiltInComponents(r *ComponentRegistry) *BuiltInComponents {
	b := &BuiltInComponents{}
	b.NeedsLink = NewTag(r, "NeedsLink")
	b.NeedsUnlink = NewTag(r, "NeedsUnlink")
	b.Finished = NewTag(r, "Finished")
	b.ImportedEntity = NewTag(r, "ImportedEntity")
	b.Ignored = NewTag(r, "Ignored")

	b.RestoreState = NewTag(r, "RestoreState", FlagCopyToChildren)
	b.CachePreAnimatedValue = NewTag(r, "CachePreAnimatedValue")

	b.AbsoluteBlend = NewTag(r, "AbsoluteBlend", FlagCopyToChildren)
	b.RelativeBlend = NewTag(r, "RelativeBlend", FlagCopyToChildren)
	b.AdditiveBlend = NewTag(r, "AdditiveBlend", FlagCopyToChildren)
	b.AdditiveFromBaseBlend = NewTag(r, "AdditiveFromBaseBlend", FlagCopyToChildren)

	b.BoundObject = NewComponentType[any](r, "BoundObject")
	b.ObjectBinding = NewComponentType[string](r, "ObjectBinding")
	b.ParentEntity = NewComponentType[Entity](r, "ParentEntity")
	b.InstanceHandle = NewComponentType[InstanceHandle](r, "InstanceHandle", FlagCopyToChildren, FlagMigrateToOutput)
	b.EvalTime = NewComponentType[float64](r, "EvalTime", FlagCopyToChildren)
	b.PropertyBinding = NewComponentType[PropertyBinding](r, "PropertyBinding", FlagCopyToChildren)
	b.HierarchicalBias = NewComponentType[int16](r, "HierarchicalBias", FlagCopyToChildren)

	for i := range NumDoubleChannels {
		b.DoubleChannel[i] = NewComponentType[DoubleSource](r, "DoubleChannel"+channelNames[i], FlagCopyToChildren)
		b.DoubleResult[i] = NewComponentType[float64](r, "DoubleResult"+channelNames[i])
		b.BaseDouble[i] = NewComponentType[float64](r, "BaseDouble"+channelNames[i])
	}
	b.BaseValueEvalTime = NewComponentType[float64](r, "BaseValueEvalTime", FlagCopyToChildren)

	b.BoolChannel = NewComponentType[BoolSource](r, "BoolChannel", FlagCopyToChildren)
	b.BoolResult = NewComponentType[bool](r, "BoolResult")

	b.WeightChannel = NewComponentType[DoubleSource](r, "WeightChannel", FlagCopyToChildren)
	b.WeightAndEasingResult = NewComponentType[float64](r, "WeightAndEasingResult")

	b.BlendChannelInput = NewComponentType[uint16](r, "BlendChannelInput")
	b.BlendChannelOutput = NewComponentType[uint16](r, "BlendChannelOutput")

	b.Interrogation = NewComponentType[InterrogationKey](r, "Interrogation", FlagCopyToChildren, FlagMigrateToOutput)
	return b
}

// BlendTypeMask returns the mask of every blend-type tag.
func (b *BuiltInComponents) BlendTypeMask() ComponentMask {
	return MaskOf(b.AbsoluteBlend.ID(), b.RelativeBlend.ID(), b.AdditiveBlend.ID(), b.AdditiveFromBaseBlend.ID())
}

// NonAbsoluteMask returns the tags that force a property onto the blend path.
func (b *BuiltInComponents) NonAbsoluteMask() ComponentMask {
	return MaskOf(b.RelativeBlend.ID(), b.AdditiveBlend.ID(), b.AdditiveFromBaseBlend.ID(), b.WeightAndEasingResult.ID())
}

// DoubleResultMask returns the mask of every DoubleResult channel.
func (b *BuiltInComponents) DoubleResultMask() ComponentMask {
	var m ComponentMask
	for i := range NumDoubleChannels {
		m.Set(b.DoubleResult[i].ID())
	}
	return m
}
