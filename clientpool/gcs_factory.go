package clientpool

import (
	"context"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSFactory builds *storage.Client values keyed by (project id, OAuth
// scopes), grounded on rezkam-mono's internal/storage/gcs/store.go use of
// storage.NewClient(ctx).
func GCSFactory(opts ...option.ClientOption) Factory[*storage.Client] {
	return func(ctx context.Context, id Identity) (*storage.Client, error) {
		clientOpts := append([]option.ClientOption(nil), opts...)
		if len(id.Scopes) > 0 {
			clientOpts = append(clientOpts, option.WithScopes(id.Scopes...))
		}
		return storage.NewClient(ctx, clientOpts...)
	}
}
