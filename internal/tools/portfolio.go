package tools

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/numeric"
	"github.com/optikit/optikit/internal/solver"
)

// Portfolio optimizes asset weights on the simplex with a quadratic risk
// model. Three modes: minimum variance (optionally under a target return),
// maximum Sharpe ratio via the standard homogenization to a convex QP, and
// maximum return under a risk ceiling via bisection on the risk-aversion
// multiplier. A quadratic_risk constraint supplies the same ceiling; in the
// other two modes it is enforced against the solved portfolio.
func (tb *Toolbox) Portfolio(ctx context.Context, req *model.PortfolioRequest) (*model.PortfolioResult, error) {
	const tool = "optimize_portfolio"
	if err := req.Validate(); err != nil {
		return nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = model.MaxSharpe
	}

	if req.MonteCarlo != nil {
		vals, err := req.MonteCarlo.ParameterValues()
		if err != nil {
			return nil, err
		}
		for i := range req.Assets {
			if v, ok := vals[req.Assets[i].Name]; ok {
				req.Assets[i].ExpectedReturn = v
			}
		}
	}

	var (
		weights map[string]float64
		summary model.Summary
	)
	opts := solver.Options{TimeLimit: req.Options.TimeLimit, Verbose: req.Options.Verbose}
	switch mode {
	case model.MinVariance:
		weights, summary = tb.minVariance(ctx, tool, req, opts)
	case model.MaxSharpe:
		weights, summary = tb.maxSharpe(ctx, tool, req, opts)
	case model.MaxReturn:
		weights, summary = tb.maxReturn(ctx, tool, req, opts)
	}
	res := &model.PortfolioResult{Summary: summary}
	if !summary.Solved() || weights == nil {
		return res, nil
	}

	ret, variance := portfolioStats(req, weights)
	std := math.Sqrt(variance)
	if req.MaxRisk != nil && mode != model.MaxReturn && std > *req.MaxRisk+numeric.Feasibility {
		if mode == model.MinVariance {
			// the variance minimum already violates the ceiling, so no
			// feasible portfolio exists under these bounds
			summary.Status = model.StatusInfeasible
			summary.Message = fmt.Sprintf("minimum attainable risk %.4g exceeds the risk ceiling %.4g", std, *req.MaxRisk)
			return &model.PortfolioResult{Summary: summary}, nil
		}
		// max_sharpe: with the tangency portfolio over the ceiling, the
		// capped optimum sits on the risk boundary, where maximizing
		// return also maximizes the ratio
		weights, summary = tb.maxReturn(ctx, tool, req, opts)
		res = &model.PortfolioResult{Summary: summary}
		if !summary.Solved() || weights == nil {
			return res, nil
		}
		ret, variance = portfolioStats(req, weights)
		std = math.Sqrt(variance)
	}
	res.Weights = weights
	res.Solution = weights
	res.ExpectedReturn = ret
	res.Variance = variance
	res.StdDev = std
	if std > 0 {
		res.SharpeRatio = (ret - req.RiskFreeRate) / std
	}
	res.RiskContributions = riskContributions(req, weights, variance)
	res.MonteCarlo = mcBlock(tool, weights, ret,
		"portfolio return under the chosen weights")
	return res, nil
}

// qpModel builds weight variables, the simplex row, and the covariance
// Hessian for a minimize-variance style objective.
func qpModel(req *model.PortfolioRequest, linear map[string]float64, maximize bool) *solver.Model {
	lo, hi := weightBoundsOf(req)
	m := &solver.Model{Name: "portfolio", Objective: solver.Objective{Maximize: maximize}}
	for _, a := range req.Assets {
		m.Variables = append(m.Variables, solver.Variable{Name: a.Name, Type: solver.Continuous, Lower: lo, Upper: hi})
	}
	var simplex []solver.Term
	for _, a := range req.Assets {
		simplex = append(simplex, solver.Term{Var: a.Name, Coef: 1})
	}
	m.Constraints = append(m.Constraints, solver.EqRow("budget", simplex, 1))
	for name, coef := range linear {
		m.Objective.Terms = append(m.Objective.Terms, solver.Term{Var: name, Coef: coef})
	}
	return m
}

func covQuad(req *model.PortfolioRequest, scale float64) []solver.QuadTerm {
	var quad []solver.QuadTerm
	for i, a := range req.Assets {
		for j := i; j < len(req.Assets); j++ {
			c := req.Covariance[i][j]
			if c == 0 {
				continue
			}
			coef := scale * c
			if i != j {
				coef *= 2 // symmetric off-diagonal pair folded into one term
			}
			quad = append(quad, solver.QuadTerm{I: a.Name, J: req.Assets[j].Name, Coef: coef})
		}
	}
	return quad
}

func (tb *Toolbox) minVariance(ctx context.Context, tool string, req *model.PortfolioRequest, opts solver.Options) (map[string]float64, model.Summary) {
	m := qpModel(req, nil, false)
	m.Objective.Quad = covQuad(req, 1)
	if req.TargetReturn != nil {
		var terms []solver.Term
		for _, a := range req.Assets {
			terms = append(terms, solver.Term{Var: a.Name, Coef: a.ExpectedReturn})
		}
		m.Constraints = append(m.Constraints, solver.GeRow("target_return", terms, *req.TargetReturn))
	}
	sol, err := tb.reg.Quadratic.Solve(ctx, m, opts)
	if err != nil {
		return nil, errorSummary(tool, err)
	}
	return weightsFrom(req, sol.Values), summarize(tool, tb.reg.Quadratic.Name(), sol)
}

// maxSharpe solves max (mu'w - rf) / sqrt(w'Cw) through the homogenized
// convex program: minimize y'Cy subject to (mu - rf)'y = 1, with the weight
// box expressed relative to sum(y). Weights are recovered as w = y / sum(y).
func (tb *Toolbox) maxSharpe(ctx context.Context, tool string, req *model.PortfolioRequest, opts solver.Options) (map[string]float64, model.Summary) {
	lo, hi := weightBoundsOf(req)
	m := &solver.Model{Name: "portfolio_sharpe"}
	for _, a := range req.Assets {
		m.Variables = append(m.Variables, solver.Variable{Name: a.Name, Type: solver.Continuous, Lower: 0, Upper: math.Inf(1)})
	}
	m.Objective.Quad = covQuad(req, 1)

	var excess []solver.Term
	for _, a := range req.Assets {
		excess = append(excess, solver.Term{Var: a.Name, Coef: a.ExpectedReturn - req.RiskFreeRate})
	}
	m.Constraints = append(m.Constraints, solver.EqRow("excess_return", excess, 1))

	// y_i - lo*sum(y) >= 0 and y_i - hi*sum(y) <= 0 carry the weight box
	// through the homogenization
	for _, a := range req.Assets {
		loTerms := []solver.Term{{Var: a.Name, Coef: 1}}
		hiTerms := []solver.Term{{Var: a.Name, Coef: 1}}
		for _, b := range req.Assets {
			loTerms = append(loTerms, solver.Term{Var: b.Name, Coef: -lo})
			hiTerms = append(hiTerms, solver.Term{Var: b.Name, Coef: -hi})
		}
		m.Constraints = append(m.Constraints, solver.GeRow("lo_"+a.Name, loTerms, 0))
		m.Constraints = append(m.Constraints, solver.LeRow("hi_"+a.Name, hiTerms, 0))
	}

	sol, err := tb.reg.Quadratic.Solve(ctx, m, opts)
	if err != nil {
		return nil, errorSummary(tool, err)
	}
	if sol.Status != solver.StatusOptimal && sol.Status != solver.StatusFeasible {
		if sol.Status == solver.StatusInfeasible {
			sol.Detail = "no portfolio with positive excess return exists; max_sharpe is undefined"
		}
		return nil, summarize(tool, tb.reg.Quadratic.Name(), sol)
	}

	total := 0.0
	for _, a := range req.Assets {
		total += sol.Values[a.Name]
	}
	weights := make(map[string]float64, len(req.Assets))
	if total > numeric.Feasibility {
		for _, a := range req.Assets {
			weights[a.Name] = sol.Values[a.Name] / total
		}
	}
	return weights, summarize(tool, tb.reg.Quadratic.Name(), sol)
}

// maxReturn bisects the risk-aversion multiplier of mu'w - lambda*w'Cw until
// the portfolio standard deviation meets the requested ceiling.
func (tb *Toolbox) maxReturn(ctx context.Context, tool string, req *model.PortfolioRequest, opts solver.Options) (map[string]float64, model.Summary) {
	ceiling := *req.MaxRisk

	solveAt := func(lambda float64) (map[string]float64, *solver.Solution, error) {
		linear := make(map[string]float64, len(req.Assets))
		for _, a := range req.Assets {
			linear[a.Name] = -a.ExpectedReturn
		}
		m := qpModel(req, linear, false)
		m.Objective.Quad = covQuad(req, lambda)
		sol, err := tb.reg.Quadratic.Solve(ctx, m, opts)
		if err != nil {
			return nil, nil, err
		}
		return weightsFrom(req, sol.Values), sol, nil
	}

	lambdaLo, lambdaHi := 1e-6, 1e6
	var (
		bestW   map[string]float64
		lastSol *solver.Solution
	)
	for iter := 0; iter < 40; iter++ {
		lambda := math.Sqrt(lambdaLo * lambdaHi)
		w, sol, err := solveAt(lambda)
		if err != nil {
			return nil, errorSummary(tool, err)
		}
		lastSol = sol
		if sol.Status != solver.StatusOptimal && sol.Status != solver.StatusFeasible {
			return nil, summarize(tool, tb.reg.Quadratic.Name(), sol)
		}
		_, variance := portfolioStats(req, w)
		if math.Sqrt(variance) > ceiling {
			lambdaLo = lambda // too risky, penalize variance harder
		} else {
			bestW = w
			lambdaHi = lambda
		}
		if lambdaHi/lambdaLo < 1.001 {
			break
		}
	}
	if bestW == nil {
		return nil, model.Summary{
			Tool:    tool,
			Solver:  tb.reg.Quadratic.Name(),
			Status:  model.StatusInfeasible,
			Message: "no feasible portfolio meets the requested risk ceiling",
		}
	}
	s := summarize(tool, tb.reg.Quadratic.Name(), lastSol)
	s.Status = model.StatusOptimal
	s.Message = ""
	return bestW, s
}

func weightBoundsOf(req *model.PortfolioRequest) (float64, float64) {
	lo, hi := req.MinWeight, req.MaxWeight
	if hi == 0 {
		hi = 1.0
	}
	if req.AllowShort && req.MinWeight == 0 {
		lo = -1.0
	}
	return lo, hi
}

func weightsFrom(req *model.PortfolioRequest, values map[string]float64) map[string]float64 {
	if values == nil {
		return nil
	}
	w := make(map[string]float64, len(req.Assets))
	for _, a := range req.Assets {
		w[a.Name] = values[a.Name]
	}
	return w
}

func portfolioStats(req *model.PortfolioRequest, weights map[string]float64) (ret, variance float64) {
	n := len(req.Assets)
	w := mat.NewVecDense(n, nil)
	for i, a := range req.Assets {
		w.SetVec(i, weights[a.Name])
		ret += a.ExpectedReturn * weights[a.Name]
	}
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, req.Covariance[i][j])
		}
	}
	var cw mat.VecDense
	cw.MulVec(cov, w)
	variance = mat.Dot(w, &cw)
	return ret, variance
}

// riskContributions computes each asset's covariance-weighted share of total
// variance. Diversifying assets can contribute negatively.
func riskContributions(req *model.PortfolioRequest, weights map[string]float64, variance float64) map[string]float64 {
	n := len(req.Assets)
	out := make(map[string]float64, n)
	if variance <= 0 {
		for _, a := range req.Assets {
			out[a.Name] = 0
		}
		return out
	}
	for i, a := range req.Assets {
		cwi := 0.0
		for j, b := range req.Assets {
			cwi += req.Covariance[i][j] * weights[b.Name]
		}
		out[a.Name] = weights[a.Name] * cwi / variance
	}
	return out
}
