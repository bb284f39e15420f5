package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("transit-publisher/api/authz")

var ErrUnauthorized = fmt.Errorf("missing credentials")
var ErrForbidden = fmt.Errorf("access denied")

type Authorizer interface {
	CheckAccess(ctx context.Context, r *http.Request, pipeline string) error
}

type authorizer struct {
	preparedQuery rego.PreparedEvalQuery
}

// NewAuthorizer compiles the policies found in a rego module. The module is
// expected to define data.example.authz.allow, which evaluates to an object
// when the request is allowed.
func NewAuthorizer(ctx context.Context, policies io.Reader) (Authorizer, error) {
	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read authz policies: %s", err.Error())
	}

	a := &authorizer{}

	a.preparedQuery, err = rego.New(
		rego.Query("x = data.example.authz.allow"),
		rego.Module("transit-publisher.rego", string(module)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (a *authorizer) CheckAccess(ctx context.Context, r *http.Request, pipeline string) (err error) {
	ctx, span := tracer.Start(ctx, "check-auth")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	input := map[string]any{
		"method":   r.Method,
		"path":     strings.Split(strings.Trim(r.URL.Path, "/"), "/"),
		"token":    token,
		"pipeline": pipeline,
	}

	results, err := a.preparedQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		err = fmt.Errorf("opa eval failed: %w", err)
		return
	}

	denied := func() error {
		if token == "" {
			return ErrUnauthorized
		}
		return ErrForbidden
	}

	if len(results) == 0 {
		err = denied()
		return
	}

	binding := results[0].Bindings["x"]

	// a denied request yields false, an allowed one an object
	if allowed, ok := binding.(bool); ok && !allowed {
		err = denied()
		return
	}

	if _, ok := binding.(map[string]any); !ok {
		err = fmt.Errorf("opa error: unexpected result type %T", binding)
		return
	}

	return nil
}
