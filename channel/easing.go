package channel

import "math"

// EasingKind selects an easing curve for section ease-in and ease-out.
type EasingKind uint8

const (
	EaseLinear EasingKind = iota
	EaseSinInOut
	EaseQuadInOut
	EaseCubicInOut
	EaseExpoInOut
)

// ParseEasing maps a name to an EasingKind. Unknown names are linear.
func ParseEasing(s string) EasingKind {
	switch s {
	case "sin":
		return EaseSinInOut
	case "quad":
		return EaseQuadInOut
	case "cubic":
		return EaseCubicInOut
	case "expo":
		return EaseExpoInOut
	}
	return EaseLinear
}

// Ease maps a linear alpha in [0,1] through the easing curve.
func Ease(kind EasingKind, alpha float64) float64 {
	alpha = math.Max(0, math.Min(1, alpha))
	switch kind {
	case EaseSinInOut:
		return 0.5 - 0.5*math.Cos(alpha*math.Pi)
	case EaseQuadInOut:
		if alpha < 0.5 {
			return 2 * alpha * alpha
		}
		return 1 - math.Pow(-2*alpha+2, 2)/2
	case EaseCubicInOut:
		if alpha < 0.5 {
			return 4 * alpha * alpha * alpha
		}
		return 1 - math.Pow(-2*alpha+2, 3)/2
	case EaseExpoInOut:
		switch {
		case alpha == 0, alpha == 1:
			return alpha
		case alpha < 0.5:
			return math.Pow(2, 20*alpha-10) / 2
		}
		return (2 - math.Pow(2, -20*alpha+10)) / 2
	}
	return alpha
}

// EasingWeight returns the ease-in/ease-out weight of a section spanning
// [start, end] at time t.
func EasingWeight(t, start, end, easeIn, easeOut float64, inKind, outKind EasingKind) float64 {
	w := 1.0
	if easeIn > 0 && t < start+easeIn {
		w *= Ease(inKind, (t-start)/easeIn)
	}
	if easeOut > 0 && t > end-easeOut {
		w *= Ease(outKind, (end-t)/easeOut)
	}
	return w
}
