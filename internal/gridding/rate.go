package gridding

import (
	"fmt"
	"math"

	"github.com/ctessum/sparse"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

// Default Z-R coefficients (Z = a·R^b).
const (
	DefaultZRA = 223.0
	DefaultZRB = 1.53
)

// ZR is a Z-R power law relating reflectivity factor Z (mm⁶/m³) to rain rate R (mm/h).
type ZR struct {
	A, B float64
}

// DefaultZR returns the Z = 223·R^1.53 relation.
func DefaultZR() ZR { return ZR{A: DefaultZRA, B: DefaultZRB} }

// Rate converts reflectivity in dBZ to rain rate in mm/h. NaN stays NaN.
func (zr ZR) Rate(dbz float64) float64 {
	if math.IsNaN(dbz) {
		return math.NaN()
	}
	z := math.Pow(10, dbz/10)
	return math.Pow(z/zr.A, 1/zr.B)
}

// ConvertZR adds the domain.LWE rate field to sweep, derived from dbzField.
func ConvertZR(sweep *domain.Sweep, dbzField string, zr ZR) error {
	if zr.A <= 0 || zr.B <= 0 {
		return fmt.Errorf("invalid Z-R coefficients a=%g b=%g", zr.A, zr.B)
	}
	dbz, ok := sweep.Fields[dbzField]
	if !ok {
		return fmt.Errorf("sweep has no %s field", dbzField)
	}
	rate := sparse.ZerosDense(dbz.Shape...)
	for i, v := range dbz.Elements {
		rate.Elements[i] = zr.Rate(v)
	}
	sweep.Fields[domain.LWE] = rate
	return nil
}
