package pageio

import (
	"testing"

	"github.com/bsv-chain/coreledger/pkg/ulogger"
)

func testLogger(t *testing.T) *ulogger.Wrapper {
	t.Helper()
	return ulogger.New("pageio_test", "error")
}
