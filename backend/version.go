package backend

import (
	"fmt"
	"net/http"

	"github.com/Masterminds/semver/v3"
)

func (h *Handler) checkClientVersion(version string) *Error {
	if h.cfg.clientVersions == nil {
		return nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return NewInvalidRequestError(fmt.Sprintf("clientVersion %q is not a version", version), WithOffendingParam("$.clientVersion"))
	}
	if !h.cfg.clientVersions.Check(v) {
		return NewHTTPError(http.StatusUnprocessableEntity, InvalidRequest, UnsupportedClientVersion,
			fmt.Sprintf("clientVersion %s is not supported", version), WithOffendingParam("$.clientVersion"))
	}
	return nil
}
