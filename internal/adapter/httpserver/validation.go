package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

const maxBodyBytes = 1 << 20

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New(validator.WithRequiredStructEnabled())
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return vld
}

type chatRequest struct {
	Messages []domain.Message `json:"messages" validate:"required,min=1,max=200,dive"`
	Mode     string           `json:"mode" validate:"omitempty,oneof=auto personal cloud specialized local"`
	Context  string           `json:"context" validate:"max=20000"`
}

type addTaskRequest struct {
	Type   string         `json:"type" validate:"required,max=64"`
	Name   string         `json:"name" validate:"required,max=256"`
	Params map[string]any `json:"params"`
}

type progressRequest struct {
	Progress *int `json:"progress" validate:"required"`
}

type completeRequest struct {
	Result map[string]any `json:"result"`
}

type failRequest struct {
	Error string `json:"error" validate:"required,max=2000"`
}

// decodeAndValidate reads a capped JSON body into dst and validates it. An
// empty body is accepted when allowEmpty is set. The returned details map
// field names to the failed rule.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidArgument, mbe.Limit)
			}
			return nil, fmt.Errorf("%w: invalid json: %v", domain.ErrInvalidArgument, err)
		}
	}
	if err := getValidator().Struct(dst); err != nil {
		verrs := map[string]string{}
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				verrs[fieldPath(fe.Namespace())] = fe.Tag()
			}
		}
		return verrs, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument)
	}
	return nil, nil
}

// fieldPath drops the struct name prefix from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
