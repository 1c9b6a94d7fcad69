package graphql

import (
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v2"
	graphqlgo "github.com/graph-gophers/graphql-go"
	gqlerrors "github.com/graph-gophers/graphql-go/errors"

	"feedhub/internal/models"
	"feedhub/internal/observability"
)

const codeBadRequest = "BAD_REQUEST"

type request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// Error is one entry of the response errors list.
type Error struct {
	Message   string                    `json:"message"`
	Status    int                       `json:"status"`
	Code      string                    `json:"code"`
	Data      []models.ValidationDetail `json:"data,omitempty"`
	Path      []interface{}             `json:"path,omitempty"`
	Locations []gqlerrors.Location      `json:"locations,omitempty"`
}

// Response is the body of every GraphQL reply.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []Error         `json:"errors,omitempty"`
}

// Handler serves POST /graphql. Resolvers read the caller from the request context.
func Handler(schema *graphqlgo.Schema) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req request
		if err := json.Unmarshal(c.Body(), &req); err != nil || req.Query == "" {
			return c.Status(http.StatusBadRequest).JSON(Response{
				Data:   json.RawMessage("null"),
				Errors: []Error{{Message: "Invalid GraphQL request.", Status: http.StatusBadRequest, Code: codeBadRequest}},
			})
		}

		ctx := c.UserContext()
		res := schema.Exec(ctx, req.Query, req.OperationName, req.Variables)

		out := Response{Data: res.Data}
		if len(out.Data) == 0 {
			out.Data = json.RawMessage("null")
		}
		for _, qe := range res.Errors {
			e := formatError(qe)
			if e.Status >= http.StatusInternalServerError {
				observability.L().ErrorContext(ctx, "graphql resolver failed",
					"path", qe.Path,
					"error", qe.Error(),
				)
			}
			out.Errors = append(out.Errors, e)
		}
		return c.Status(http.StatusOK).JSON(out)
	}
}

// formatError maps a query error to the error envelope. Errors with neither
// a resolver cause nor a path are query errors and report 400; a recovered
// panic carries a path only and reports 500.
func formatError(qe *gqlerrors.QueryError) Error {
	if qe.ResolverError == nil && len(qe.Path) > 0 {
		internal := models.NewInternalError(qe)
		return Error{Message: internal.Message, Status: internal.Status, Code: internal.Code, Path: qe.Path}
	}
	if qe.ResolverError == nil {
		return Error{
			Message:   qe.Message,
			Status:    http.StatusBadRequest,
			Code:      codeBadRequest,
			Path:      qe.Path,
			Locations: qe.Locations,
		}
	}
	appErr := models.AsAppError(qe.ResolverError)
	return Error{
		Message: appErr.Message,
		Status:  appErr.Status,
		Code:    appErr.Code,
		Data:    appErr.Data,
		Path:    qe.Path,
	}
}
