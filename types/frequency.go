package types

type Frequency string

const (
	Daily   Frequency = "D"
	Weekly  Frequency = "W"
	Monthly Frequency = "M"
)

var ConvertFrequency = map[string]Frequency{
	"D": Daily,
	"W": Weekly,
	"M": Monthly,
}
