package publish

import (
	nethttp "net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"

	"github.com/dashpull/dashpull/internal/http"
)

// awsHTTPClient hands the proxy-aware client to the AWS config loader. The
// loader installs AWS_CA_BUNDLE certificates through WithTransportOptions,
// which a bare *http.Client does not offer.
type awsHTTPClient struct {
	*nethttp.Client
}

// WithTransportOptions applies opts to a copy of the proxy transport.
func (c awsHTTPClient) WithTransportOptions(opts ...func(*nethttp.Transport)) aws.HTTPClient {
	client, ok := http.WithTransportOptions(c.Client, opts...)
	if !ok {
		return awshttp.NewBuildableClient().WithTransportOptions(opts...)
	}
	return awsHTTPClient{client}
}
