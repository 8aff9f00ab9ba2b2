package lifecycle

import (
	"fmt"
	"strings"
)

const (
	thumbnailSuffix = "latest_thumbnail/thumb.jpg"
	vodSuffix       = "hls/master.m3u8"
)

// mediaURL derives the public object location for a recording asset. The
// provider writes every asset under {keyPrefix}/media/ inside the bucket.
func mediaURL(bucket, region, keyPrefix, suffix string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s/media/%s",
		bucket, region, strings.Trim(keyPrefix, "/"), suffix)
}

func thumbnailURL(event RecordingEvent) string {
	return mediaURL(event.Bucket, event.Region, event.KeyPrefix, thumbnailSuffix)
}

func vodURL(event RecordingEvent) string {
	return mediaURL(event.Bucket, event.Region, event.KeyPrefix, vodSuffix)
}
