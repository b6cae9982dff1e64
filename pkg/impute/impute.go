// Package impute fills missing numeric observations with iterative
// multivariate imputation (MICE-style).
//
// Every incomplete column starts mean-filled. The imputer then runs rounds in
// which each incomplete column is regressed on all other usable columns by
// ridge least squares, and its missing entries are re-estimated from the fit.
// Rounds stop when the largest change to any imputed entry drops below
// Tol·max|X|, or after MaxIter rounds.
//
// A column with no observed value at all cannot be regressed and is left
// missing. This is reported in Report.Skipped and never treated as an error.
package impute

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/gridcast/pkg/series"
)

// Order controls the sequence in which incomplete columns are imputed within a
// round.
type Order string

const (
	// OrderAscending imputes the column with the fewest missing values first.
	OrderAscending Order = "ascending"
	// OrderRandom imputes columns in a permutation drawn from Seed.
	OrderRandom Order = "random"
)

// Column names used by Impute for aligned records.
const (
	ColumnDemand      = "demand"
	ColumnTemperature = "temperature"
)

// Options configures an Imputer.
type Options struct {
	MaxIter int
	Tol     float64
	Seed    uint64
	Order   Order
	// Alpha is the ridge penalty. It keeps the normal equations solvable when
	// a predictor is constant over the observed rows.
	Alpha float64
}

// DefaultOptions returns the reference configuration: 10 rounds, tolerance
// 1e-3, seed 0, ascending order.
func DefaultOptions() Options {
	return Options{
		MaxIter: 10,
		Tol:     1e-3,
		Seed:    0,
		Order:   OrderAscending,
		Alpha:   1e-6,
	}
}

// Report describes what an imputation run did.
type Report struct {
	// Filled is the number of imputed entries per column.
	Filled map[string]int
	// Skipped lists columns that were entirely missing and left untouched.
	Skipped []string
	// Iterations is the number of regression rounds executed.
	Iterations int
	// Converged is false when MaxIter was reached before the tolerance.
	Converged bool
}

// Imputer is safe for concurrent use; it holds only configuration.
type Imputer struct {
	opts Options
}

// New creates an Imputer. Zero fields in opts take their default values.
func New(opts Options) *Imputer {
	def := DefaultOptions()
	if opts.MaxIter <= 0 {
		opts.MaxIter = def.MaxIter
	}
	if opts.Tol <= 0 {
		opts.Tol = def.Tol
	}
	if opts.Order == "" {
		opts.Order = def.Order
	}
	if opts.Alpha <= 0 {
		opts.Alpha = def.Alpha
	}
	return &Imputer{opts: opts}
}

// Options returns the effective configuration.
func (im *Imputer) Options() Options {
	return im.opts
}

// Impute fills missing demand and temperature values in recs.
// If nothing is missing, recs is returned as is.
func (im *Imputer) Impute(recs []series.Aligned) ([]series.Aligned, Report) {
	names := []string{ColumnDemand, ColumnTemperature}
	if len(recs) == 0 {
		return recs, Report{Filled: map[string]int{}, Converged: true}
	}

	x := mat.NewDense(len(recs), len(names), nil)
	complete := true
	for i, r := range recs {
		x.Set(i, 0, r.Demand.OrNaN())
		x.Set(i, 1, r.Temperature.OrNaN())
		if !r.Demand.Valid || !r.Temperature.Valid {
			complete = false
		}
	}
	if complete {
		return recs, Report{Filled: map[string]int{}, Converged: true}
	}

	filled, rep := im.FitTransform(x, names)

	out := make([]series.Aligned, len(recs))
	for i, r := range recs {
		r.Demand = series.Some(filled.At(i, 0))
		r.Temperature = series.Some(filled.At(i, 1))
		out[i] = r
	}
	return out, rep
}

// FitTransform imputes NaN entries of x. names labels the columns in the
// report. x is not modified.
func (im *Imputer) FitTransform(x *mat.Dense, names []string) (*mat.Dense, Report) {
	rows, cols := x.Dims()
	out := mat.DenseCopyOf(x)
	rep := Report{Filled: make(map[string]int)}

	missing := make([][]int, cols)
	var usable, incomplete []int
	scale := 0.0
	for j := 0; j < cols; j++ {
		var observed []float64
		for i := 0; i < rows; i++ {
			v := x.At(i, j)
			if math.IsNaN(v) {
				missing[j] = append(missing[j], i)
				continue
			}
			observed = append(observed, v)
			scale = math.Max(scale, math.Abs(v))
		}

		switch {
		case len(observed) == 0:
			rep.Skipped = append(rep.Skipped, columnName(names, j))
		case len(missing[j]) == 0:
			usable = append(usable, j)
		default:
			usable = append(usable, j)
			incomplete = append(incomplete, j)
			mean := stat.Mean(observed, nil)
			for _, i := range missing[j] {
				out.Set(i, j, mean)
			}
			rep.Filled[columnName(names, j)] = len(missing[j])
		}
	}

	if len(incomplete) == 0 || len(usable) < 2 {
		rep.Converged = true
		return out, rep
	}

	order := im.order(incomplete, missing)
	threshold := im.opts.Tol * scale

	for iter := 0; iter < im.opts.MaxIter; iter++ {
		rep.Iterations++
		maxChange := 0.0

		for _, j := range order {
			predictors := make([]int, 0, len(usable)-1)
			for _, c := range usable {
				if c != j {
					predictors = append(predictors, c)
				}
			}

			change := im.regress(x, out, j, predictors, missing[j])
			maxChange = math.Max(maxChange, change)
		}

		if maxChange < threshold {
			rep.Converged = true
			break
		}
	}

	return out, rep
}

// order returns the incomplete columns in imputation order.
func (im *Imputer) order(incomplete []int, missing [][]int) []int {
	order := append([]int(nil), incomplete...)
	switch im.opts.Order {
	case OrderRandom:
		rng := rand.New(rand.NewPCG(im.opts.Seed, im.opts.Seed))
		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
	default:
		sort.SliceStable(order, func(a, b int) bool {
			return len(missing[order[a]]) < len(missing[order[b]])
		})
	}
	return order
}

// regress fits column target on predictors over the rows where target was
// originally observed, then re-estimates the missing rows in out. It returns
// the largest absolute change made.
func (im *Imputer) regress(x, out *mat.Dense, target int, predictors []int, missingRows []int) float64 {
	rows, _ := x.Dims()
	isMissing := make(map[int]bool, len(missingRows))
	for _, i := range missingRows {
		isMissing[i] = true
	}

	train := make([]int, 0, rows-len(missingRows))
	for i := 0; i < rows; i++ {
		if !isMissing[i] {
			train = append(train, i)
		}
	}
	if len(train) < 2 {
		return 0
	}

	p := len(predictors)
	xm := make([]float64, p)
	for k, c := range predictors {
		col := make([]float64, len(train))
		for n, i := range train {
			col[n] = out.At(i, c)
		}
		xm[k] = stat.Mean(col, nil)
	}
	ys := make([]float64, len(train))
	for n, i := range train {
		ys[n] = out.At(i, target)
	}
	ym := stat.Mean(ys, nil)

	xc := mat.NewDense(len(train), p, nil)
	yc := mat.NewVecDense(len(train), nil)
	for n, i := range train {
		for k, c := range predictors {
			xc.Set(n, k, out.At(i, c)-xm[k])
		}
		yc.SetVec(n, ys[n]-ym)
	}

	var a mat.Dense
	a.Mul(xc.T(), xc)
	for k := 0; k < p; k++ {
		a.Set(k, k, a.At(k, k)+im.opts.Alpha)
	}
	var b mat.VecDense
	b.MulVec(xc.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&a, &b); err != nil {
		return 0
	}

	maxChange := 0.0
	for _, i := range missingRows {
		pred := ym
		for k, c := range predictors {
			pred += (out.At(i, c) - xm[k]) * beta.AtVec(k)
		}
		maxChange = math.Max(maxChange, math.Abs(pred-out.At(i, target)))
		out.Set(i, target, pred)
	}
	return maxChange
}

func columnName(names []string, j int) string {
	if j < len(names) {
		return names[j]
	}
	return "column"
}
