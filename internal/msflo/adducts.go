package msflo

// Methods with a quantifier adduct table
const (
	MethodPosCSH   = "posCSH"
	MethodNegCSH   = "negCSH"
	MethodPosHILIC = "posHILIC"
)

// Adduct is the ion used to quantify an internal standard class.
type Adduct struct {
	Class  string
	Adduct string
}

// Adducts is an ordered adduct table. HILIC names are matched against the
// classes in order.
type Adducts []Adduct

func (a Adducts) lookup(class string) (string, bool) {
	for _, x := range a {
		if x.Class == class {
			return x.Adduct, true
		}
	}
	return "", false
}

// AdductTable returns the quantifier adducts of a method, nil for methods
// without one.
func AdductTable(method string) Adducts {
	switch method {
	case MethodPosCSH:
		return posCSH
	case MethodNegCSH:
		return negCSH
	case MethodPosHILIC:
		return posHILIC
	}
	return nil
}

var posCSH = Adducts{
	{`CE`, `[M+Na]+`},
	{`Cer`, `[M+H]+`},
	{`Cholesterol`, `[M+H-H2O]+`},
	{`DAG`, `[M+Na]+`},
	{`LPC`, `[M+H]+`},
	{`LPE`, `[M+H]+`},
	{`PC`, `[M+H]+`},
	{`PE`, `[M+H]+`},
	{`SM`, `[M+H]+`},
	{`TAG`, `[M+NH4]+`},
}

var negCSH = Adducts{
	{`FA`, `[M-H]-`},
	{`Ceramide`, `[M+Cl]-`},
	{`PG`, `[M-H]-`},
	{`LPC`, `[M+CH3COO]-`},
	{`LPE`, `[M-H]-`},
	{`PC`, `[M+CH3COO]-`},
	{`PE`, `[M-H]-`},
	{`SM`, `[M+CH3COO]-`},
	{`5-PAHSA-d9`, `[M-H]-`},
	{`PI`, `[M-H]-`},
	{`PS`, `[M-H]-`},
}

var posHILIC = Adducts{
	{`D3-Creatinine`, `[M+H]+`},
	{`D9-Choline`, `[M]+`},
	{`D9-TMAO`, `[M+H]+`},
	{`D3-1-Methylnicotinamide`, `[M]+`},
	{`D8-Tryptophan`, `[M+H]+`},
	{`D8-Phenylalanine`, `[M+H]+`},
	{`Val-Tyr-Val`, `[M+H]+`},
	{`D10-Leucine`, `[M+H]+`},
	{`D3-ACar(2:0)`, `[M+H]+`},
	{`D10-Isoleucine`, `[M+H]+`},
	{`D9-Betaine`, `[M+H]+`},
	{`D3-Histamine,`, `[M+H]+`},
	{`D8-Methionine`, `[M+H]+`},
	{`D7-Tyrosine`, `[M+H]+`},
	{`D8-Valine`, `[M+H]+`},
	{`D7-Proline`, `[M+H]+`},
	{`D3-L-Carnitine`, `[M+H]+`},
	{`D4-Alanine`, `[M+H]+`},
	{`D3-Creatine`, `[M+H]+`},
	{`D5-Threonine`, `[M+H]+`},
	{`D5-L-Glutamine`, `[M+H]+`},
	{`D3-Asparagine`, `[M+H]+`},
	{`D3-Serine`, `[M+H]+`},
	{`D5-Glutamic`, `[M+H]+`},
	{`D3-Aspartic`, `[M+H]+`},
	{`D5-Histidine`, `[M+H]+`},
	{`D7-Arginine`, `[M+H]+`},
	{`D8-Lysine`, `[M+H]+`},
	{`D2-Ornithine`, `[M+H]+`},
	{`D4-Cystine`, `[M+H]+`},
}
