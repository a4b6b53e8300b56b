package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/transitclock/refresher/internal/domain"
)

type subscriberKey struct{}

func WithSubscriber(ctx context.Context, id domain.SubscriberID) context.Context {
	return context.WithValue(ctx, subscriberKey{}, id)
}

func SubscriberFromContext(ctx context.Context) (domain.SubscriberID, bool) {
	v, ok := ctx.Value(subscriberKey{}).(domain.SubscriberID)
	return v, ok
}

// bindSubscriber parses the {subscriberId} path segment.
func bindSubscriber(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw int64
		err := runtime.BindStyledParameterWithOptions("simple", "subscriberId", chi.URLParam(r, "subscriberId"), &raw, runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
		if err != nil || raw < 0 {
			writeError(w, r, http.StatusBadRequest, "INVALID_SUBSCRIBER_ID", "subscriberId must be a non-negative integer", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSubscriber(r.Context(), domain.SubscriberID(raw))))
	})
}
