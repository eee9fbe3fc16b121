package nn

import "math"

// activation is an elementwise nonlinearity with the derivative expressed
// in terms of the pre-activation input z. Softmax is the one row-wise
// exception, handled separately in the forward pass.
type activation struct {
	apply func(z float64) float64
	deriv func(z float64) float64
}

const (
	leakySlope   = 0.01
	seluAlpha    = 1.6732632423543772
	seluScale    = 1.0507009873554805
	geluSqrt2Pi  = 0.7978845608028654 // sqrt(2/pi)
	geluCubicFit = 0.044715
)

var activations = map[string]activation{
	"linear": {
		apply: func(z float64) float64 { return z },
		deriv: func(z float64) float64 { return 1 },
	},
	"relu": {
		apply: func(z float64) float64 { return math.Max(0, z) },
		deriv: func(z float64) float64 {
			if z > 0 {
				return 1
			}
			return 0
		},
	},
	"leaky_relu": {
		apply: func(z float64) float64 {
			if z > 0 {
				return z
			}
			return leakySlope * z
		},
		deriv: func(z float64) float64 {
			if z > 0 {
				return 1
			}
			return leakySlope
		},
	},
	"sigmoid": {
		apply: sigmoid,
		deriv: func(z float64) float64 {
			s := sigmoid(z)
			return s * (1 - s)
		},
	},
	"tanh": {
		apply: math.Tanh,
		deriv: func(z float64) float64 {
			t := math.Tanh(z)
			return 1 - t*t
		},
	},
	"elu": {
		apply: func(z float64) float64 {
			if z > 0 {
				return z
			}
			return math.Expm1(z)
		},
		deriv: func(z float64) float64 {
			if z > 0 {
				return 1
			}
			return math.Exp(z)
		},
	},
	"selu": {
		apply: func(z float64) float64 {
			if z > 0 {
				return seluScale * z
			}
			return seluScale * seluAlpha * math.Expm1(z)
		},
		deriv: func(z float64) float64 {
			if z > 0 {
				return seluScale
			}
			return seluScale * seluAlpha * math.Exp(z)
		},
	},
	"softplus": {
		apply: func(z float64) float64 { return math.Log1p(math.Exp(-math.Abs(z))) + math.Max(z, 0) },
		deriv: sigmoid,
	},
	"gelu": {
		apply: func(z float64) float64 {
			return 0.5 * z * (1 + math.Tanh(geluSqrt2Pi*(z+geluCubicFit*z*z*z)))
		},
		deriv: func(z float64) float64 {
			inner := geluSqrt2Pi * (z + geluCubicFit*z*z*z)
			t := math.Tanh(inner)
			sech2 := 1 - t*t
			return 0.5*(1+t) + 0.5*z*sech2*geluSqrt2Pi*(1+3*geluCubicFit*z*z)
		},
	},
	// Softmax is row-wise, not elementwise; the dense stage special-cases
	// it in both directions. The entry exists so validation accepts the
	// name.
	"softmax": {
		apply: func(z float64) float64 { return z },
		deriv: func(z float64) float64 { return 1 },
	},
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// heUniformLimit and xavierUniformLimit are the initialization bounds for
// the relu family and the saturating activations respectively.
func heUniformLimit(fanIn int) float64 {
	return math.Sqrt(6 / float64(fanIn))
}

func xavierUniformLimit(fanIn, fanOut int) float64 {
	return math.Sqrt(6 / float64(fanIn+fanOut))
}

// reluFamily reports whether an activation benefits from He initialization.
func reluFamily(name string) bool {
	switch name {
	case "relu", "leaky_relu", "elu", "selu", "gelu", "softplus":
		return true
	default:
		return false
	}
}

// softmaxRows applies a numerically stable softmax to each row in place.
func softmaxRows(rows, cols int, data []float64) {
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		var sum float64
		for j, v := range row {
			e := math.Exp(v - max)
			row[j] = e
			sum += e
		}
		for j := range row {
			row[j] /= sum
		}
	}
}
