package s3blob

import (
	"io"

	"github.com/minio/minio-go/v7/pkg/credentials"
)

// newPipe returns an io.Pipe pair used to stream NewTypedWriter's
// caller-supplied bytes into a concurrent PutObject call, since
// minio-go's PutObject wants an io.Reader rather than a Writer.
func newPipe() (*io.PipeReader, *io.PipeWriter) {
	return io.Pipe()
}

func staticCreds(accessKey, secretKey string) *credentials.Credentials {
	return credentials.NewStaticV4(accessKey, secretKey, "")
}
