package domain

import "fmt"

// Field is the closed set of measurements a sample row can carry.
type Field string

const (
	FieldAltura     Field = "altura_cm"
	FieldEstructura Field = "estructura_cm"
	FieldDiametro   Field = "diametro_mm"
)

// AllFields lists every field a ValidationConfig must cover.
var AllFields = []Field{FieldAltura, FieldEstructura, FieldDiametro}

func (f Field) Valid() bool {
	switch f {
	case FieldAltura, FieldEstructura, FieldDiametro:
		return true
	default:
		return false
	}
}

// Label is the column header shown to the operator.
func (f Field) Label() string {
	switch f {
	case FieldAltura:
		return "Altura (cm)"
	case FieldEstructura:
		return "Estructura (cm)"
	case FieldDiametro:
		return "Diámetro (mm)"
	default:
		return string(f)
	}
}

// Unit is the measurement unit used in range hints.
func (f Field) Unit() string {
	if f == FieldDiametro {
		return "mm"
	}
	return "cm"
}

func (f Field) invalidMessage(row int) string {
	switch f {
	case FieldAltura:
		return fmt.Sprintf("Altura inválida en muestra %d", row)
	case FieldEstructura:
		return fmt.Sprintf("Estructura inválida en muestra %d", row)
	case FieldDiametro:
		return fmt.Sprintf("Diámetro inválido en muestra %d", row)
	default:
		return fmt.Sprintf("Valor inválido (%s) en muestra %d", f, row)
	}
}
