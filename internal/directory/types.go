package directory

import (
	"context"

	"streampulse/internal/models"
)

// Client resolves channel metadata owned by the channel directory service.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// ResolveByReference maps a provider-side channel reference (such as an
	// ARN) to the directory's channel record.
	ResolveByReference(ctx context.Context, reference string) (models.ChannelPreview, error)

	// BatchResolve fetches previews for the given channel ids in a single
	// round trip. The result preserves the order of ids; channels the
	// directory does not know are simply absent from the result.
	BatchResolve(ctx context.Context, ids []string) ([]models.ChannelPreview, error)
}

// NoopClient is a Client used in tests and in deployments without a
// directory service. It treats the provider reference as the channel id so
// lifecycle processing keeps working without external lookups.
type NoopClient struct{}

func (NoopClient) ResolveByReference(ctx context.Context, reference string) (models.ChannelPreview, error) {
	return models.ChannelPreview{ID: reference}, nil
}

func (NoopClient) BatchResolve(ctx context.Context, ids []string) ([]models.ChannelPreview, error) {
	previews := make([]models.ChannelPreview, 0, len(ids))
	for _, id := range ids {
		previews = append(previews, models.ChannelPreview{ID: id})
	}
	return previews, nil
}
