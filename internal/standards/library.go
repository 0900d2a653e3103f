// Package standards searches MS-Dial exports for the internal standards
// spiked into every sample, by retention time and m/z.
package standards

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"
)

// Standard is one internal standard ion.
type Standard struct {
	Name string  `yaml:"name" csv:"name"`
	MZ   float64 `yaml:"mz" csv:"mz"`
	RT   float64 `yaml:"rt" csv:"rt"` // minutes
}

// Library is an ordered list of standards for one chromatographic method.
type Library struct {
	Method    string     `yaml:"method"`
	Standards []Standard `yaml:"standards"`
}

// Built-in methods
const (
	MethodHILIC = "hilic"
	MethodCSH   = "csh"
)

var ErrUnknownMethod = errors.New("unknown method")

// Builtin returns the library of a built-in method.
func Builtin(method string) (Library, error) {
	switch strings.ToLower(method) {
	case MethodHILIC:
		return Library{Method: MethodHILIC, Standards: append([]Standard(nil), hilicStandards...)}, nil
	case MethodCSH:
		return Library{Method: MethodCSH, Standards: append([]Standard(nil), cshStandards...)}, nil
	}
	return Library{}, fmt.Errorf("%w %q", ErrUnknownMethod, method)
}

// LoadLibrary reads a YAML library file:
//
//	method: c18
//	standards:
//	  - {name: CUDA, mz: 341.2799, rt: 1.16}
func LoadLibrary(path string) (Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Library{}, pfx.Err(err)
	}
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return Library{}, fmt.Errorf("%s: %w", path, err)
	}
	if len(lib.Standards) == 0 {
		return Library{}, fmt.Errorf("%s: library has no standards", path)
	}
	for i, s := range lib.Standards {
		if s.Name == "" || s.MZ <= 0 || s.RT < 0 {
			return Library{}, fmt.Errorf("%s: standard %d: name, positive mz and rt are required", path, i+1)
		}
	}
	return lib, nil
}

// WriteCSV writes the standards of the library as CSV with a header row.
func (l Library) WriteCSV(w io.Writer) error {
	return gocsv.Marshal(&l.Standards, w)
}

// Fiehn Lab HILIC internal standards
var hilicStandards = []Standard{
	{Name: `CUDA`, MZ: 341.2799, RT: 1.16},
	{Name: `D3-Creatinine`, MZ: 117.0850, RT: 4.95},
	{Name: `D9-Choline`, MZ: 113.1635, RT: 5.18},
	{Name: `D9-TMAO`, MZ: 85.1322, RT: 5.58},
	{Name: `D3-1-Methylnicotinamide`, MZ: 140.0898, RT: 6.26},
	{Name: `Val-Try-Val`, MZ: 380.2180, RT: 6.96},
	{Name: `D9-Betaine`, MZ: 127.1427, RT: 7.25},
	{Name: `D3-AC(2:0)`, MZ: 207.1419, RT: 7.21},
	{Name: `D3-Histamine N-methyl`, MZ: 129.1214, RT: 7.35},
	{Name: `D3-L-Carnitine`, MZ: 165.1313, RT: 7.82},
	{Name: `D9-Butyrobetaine`, MZ: 155.1740, RT: 7.82},
	{Name: `D9-Crotonobetaine`, MZ: 153.1584, RT: 7.86},
	{Name: `D3-Creatine`, MZ: 135.0956, RT: 8.15},
	{Name: `D3-Alanine`, MZ: 93.0738, RT: 8.17},
	{Name: `D5-L-Glutamine`, MZ: 152.1078, RT: 8.67},
	{Name: `D3-DL-Glutamic Acid`, MZ: 151.0793, RT: 8.85},
	{Name: `D3-DL-Aspartic Acid`, MZ: 137.0636, RT: 9.34},
	{Name: `15N2-L-Arginine`, MZ: 177.1130, RT: 9.53},
}

// Fiehn Lab CSH positive mode internal standards
var cshStandards = []Standard{
	{Name: `CE(22:1) iSTD [M+Chol-head-H2O+H]+`, MZ: 1076.0144, RT: 11.55},
	{Name: `CE(22:1) iSTD [M+Na]+`, MZ: 729.652, RT: 11.54},
	{Name: `CE(22:1) iSTD [M+NH4]+`, MZ: 724.6966, RT: 11.55},
	{Name: `Cer(d18:1/17:0) iSTD [M+H]+`, MZ: 552.535, RT: 5.84},
	{Name: `Cer(d18:1/17:0) iSTD [M+H-H2O]+`, MZ: 534.5245, RT: 5.84},
	{Name: `Cer(d18:1/17:0) iSTD [M+Na]+`, MZ: 574.517, RT: 5.84},
	{Name: `Cholesterol d7 iSTD [M-H2O+H]+`, MZ: 376.3955, RT: 4.72},
	{Name: `CUDA iSTD [M+H]+`, MZ: 341.2799, RT: 0.72},
	{Name: `DG(12:0/12:0/0:0) iSTD [M+K]+`, MZ: 495.3446, RT: 4.21},
	{Name: `DG(12:0/12:0/0:0) iSTD [M+Na]+`, MZ: 479.3707, RT: 4.2},
	{Name: `DG(12:0/12:0/0:0) iSTD [M+NH4]+`, MZ: 474.4153, RT: 4.2},
	{Name: `DG(18:1/2:0/0:0) iSTD [M+K]+`, MZ: 437.2664, RT: 3.14},
	{Name: `DG(18:1/2:0/0:0) iSTD [M+Na]+`, MZ: 421.2924, RT: 3.15},
	{Name: `DG(18:1/2:0/0:0) iSTD [M+NH4]+`, MZ: 416.3371, RT: 3.15},
	{Name: `LPC(17:0) iSTD [M+H]+`, MZ: 510.3554, RT: 1.69},
	{Name: `LPE(17:1) iSTD [M+H]+`, MZ: 466.2928, RT: 1.22},
	{Name: `MG (17:0/0:0/0:0) iSTD [M+NH4]+`, MZ: 362.3265, RT: 2.99},
	{Name: `MG(17:0/0:0/0:0) iSTD [M+H]+`, MZ: 345.2999, RT: 2.99},
	{Name: `MG(17:0/0:0/0:0) iSTD [M+Na]+`, MZ: 367.2819, RT: 2.99},
	{Name: `PC(12:0/13:0) iSTD [M+H]+`, MZ: 636.4599, RT: 3.46},
	{Name: `PE(17:0/17:0) iSTD [M+H]+`, MZ: 720.5538, RT: 6.16},
	{Name: `SM(d18:1/17:0) iSTD [M+H]+`, MZ: 717.5905, RT: 4.98},
	{Name: `Sphingosine(d17:1) iSTD [M+H]+`, MZ: 286.2741, RT: 1.07},
	{Name: `TAG d5(17:0/17:1/17:0) iSTD [M+K]+`, MZ: 890.7622, RT: 10.85},
	{Name: `TAG d5(17:0/17:1/17:0) iSTD [M+Na]+`, MZ: 874.7882, RT: 10.85},
	{Name: `TAG d5(17:0/17:1/17:0) iSTD [M+NH4]+`, MZ: 869.8329, RT: 10.85},
}
