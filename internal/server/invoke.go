package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/tools"
)

// knownTools lists the tool names the job API accepts.
var knownTools = []string{
	"optimize_allocation",
	"robust_allocation",
	"optimize_portfolio",
	"optimize_schedule",
	"optimize_network",
	"pareto_frontier",
	"stochastic_twostage",
	"column_generation",
	"execute",
}

func isKnownTool(name string) bool {
	for _, t := range knownTools {
		if t == name {
			return true
		}
	}
	return false
}

// Invoke decodes the raw request for the named tool, runs it against the
// toolbox, and returns the marshalled result alongside the normalized
// summary. Structural validation (struct tags) happens here; domain
// validation stays inside the tool and surfaces as *model.ValidationError.
func Invoke(ctx context.Context, tb *tools.Toolbox, validate *validator.Validate, tool string, raw json.RawMessage) (json.RawMessage, *model.Summary, error) {
	switch tool {
	case "optimize_allocation":
		var req model.AllocationRequest
		if err := decodeRequest(raw, validate, &req); err != nil {
			return nil, nil, err
		}
		res, err := tb.Allocation(ctx, &req)
		if err != nil {
			return nil, nil, err
		}
		return marshalResult(res, &res.Summary)

	case "robust_allocation":
		var req model.RobustRequest
		if err := decodeRequest(raw, validate, &req); err != nil {
			return nil, nil, err
		}
		res, err := tb.Robust(ctx, &req)
		if err != nil {
			return nil, nil, err
		}
		return marshalResult(res, &res.Summary)

	case "optimize_portfolio":
		var req model.PortfolioRequest
		if err := decodeRequest(raw, validate, &req); err != nil {
			return nil, nil, err
		}
		res, err := tb.Portfolio(ctx, &req)
		if err != nil {
			return nil, nil, err
		}
		return marshalResult(res, &res.Summary)

	case "optimize_schedule":
		var req model.ScheduleRequest
		if err := decodeRequest(raw, validate, &req); err != nil {
			return nil, nil, err
		}
		res, err := tb.Schedule(ctx, &req)
		if err != nil {
			return nil, nil, err
		}
		return marshalResult(res, &res.Summary)

	case "optimize_network":
		var req model.NetworkRequest
		if err := decodeRequest(raw, validate, &req); err != nil {
			return nil, nil, err
		}
		res, err := tb.Network(ctx, &req)
		if err != nil {
			return nil, nil, err
		}
		return marshalResult(res, &res.Summary)

	case "pareto_frontier":
		var req model.ParetoRequest
		if err := decodeRequest(raw, validate, &req); err != nil {
			return nil, nil, err
		}
		res, err := tb.Pareto(ctx, &req)
		if err != nil {
			return nil, nil, err
		}
		return marshalResult(res, &res.Summary)

	case "stochastic_twostage":
		var req model.StochasticRequest
		if err := decodeRequest(raw, validate, &req); err != nil {
			return nil, nil, err
		}
		res, err := tb.Stochastic(ctx, &req)
		if err != nil {
			return nil, nil, err
		}
		return marshalResult(res, &res.Summary)

	case "column_generation":
		var req model.ColumnGenRequest
		if err := decodeRequest(raw, validate, &req); err != nil {
			return nil, nil, err
		}
		res, err := tb.ColumnGen(ctx, &req)
		if err != nil {
			return nil, nil, err
		}
		return marshalResult(res, &res.Summary)

	case "execute":
		var req model.ExecuteRequest
		if err := decodeRequest(raw, validate, &req); err != nil {
			return nil, nil, err
		}
		res, err := tb.Execute(ctx, &req)
		if err != nil {
			return nil, nil, err
		}
		return marshalResult(res, &res.Summary)

	default:
		return nil, nil, fmt.Errorf("unknown tool: %s", tool)
	}
}

// decodeRequest unmarshals the raw payload into the tool's request type and
// applies struct-tag validation before the tool sees it.
func decodeRequest(raw json.RawMessage, validate *validator.Validate, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("request payload is empty")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid request payload: %w", err)
	}
	if validate != nil {
		if err := validate.Struct(v); err != nil {
			return fmt.Errorf("request validation failed: %w", err)
		}
	}
	return nil
}

func marshalResult(res any, summary *model.Summary) (json.RawMessage, *model.Summary, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return data, summary, nil
}
