package similarity_test

import (
	"testing"

	"github.com/okian/tastegraph/internal/domain/similarity"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCenteredCosine(t *testing.T) {
	Convey("Given a calculator centered on 1200", t, func() {
		calc := similarity.NewCalculator(1200)

		Convey("When both profiles are empty", func() {
			So(calc.CenteredCosine(similarity.Vector{}, similarity.Vector{}), ShouldEqual, 0)
			So(calc.CenteredCosine(nil, nil), ShouldEqual, 0)
		})

		Convey("When one profile is entirely neutral", func() {
			a := similarity.Vector{"m1": 1200, "m2": 1200}
			b := similarity.Vector{"m1": 1600, "m2": 900}
			So(calc.CenteredCosine(a, b), ShouldEqual, 0)
		})

		Convey("When a profile is compared with itself", func() {
			a := similarity.Vector{"m1": 1600, "m2": 900, "m3": 1450}
			So(calc.CenteredCosine(a, a), ShouldAlmostEqual, 1.0, 1e-9)
		})

		Convey("When two users agree on shared media", func() {
			a := similarity.Vector{"m1": 1600, "m2": 1500, "m3": 1400}
			b := similarity.Vector{"m1": 1700, "m2": 1450, "m3": 1300}
			sim := calc.CenteredCosine(a, b)
			So(sim, ShouldBeGreaterThan, 0.9)
			So(sim, ShouldBeLessThanOrEqualTo, 1)
		})

		Convey("When two users have opposite tastes", func() {
			a := similarity.Vector{"m1": 1600, "m2": 800}
			b := similarity.Vector{"m1": 800, "m2": 1600}
			So(calc.CenteredCosine(a, b), ShouldAlmostEqual, -1.0, 1e-9)
		})

		Convey("When profiles only partly overlap", func() {
			a := similarity.Vector{"m1": 1600, "m2": 1500}
			b := similarity.Vector{"m2": 1500, "m3": 1700}

			Convey("Then missing entries count as neutral", func() {
				// a=(400,300,0) b=(0,300,500): 90000 / (500 * sqrt(340000))
				So(calc.CenteredCosine(a, b), ShouldAlmostEqual, 90000/(500*583.0951894845301), 1e-9)
			})

			Convey("Then the result is symmetric and reproducible", func() {
				first := calc.CenteredCosine(a, b)
				for i := 0; i < 50; i++ {
					So(calc.CenteredCosine(b, a), ShouldEqual, first)
				}
			})
		})
	})

	Convey("Given a non-positive neutral score", t, func() {
		calc := similarity.NewCalculator(0)

		Convey("Then the default centre is used", func() {
			a := similarity.Vector{"m1": 1200}
			So(calc.CenteredCosine(a, a), ShouldEqual, 0)
		})
	})
}
