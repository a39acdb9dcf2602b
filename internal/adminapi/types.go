package adminapi

// APIResponse is the envelope every route responds with, adapted from
// the teacher's internal/api/types.go shape (APIResponse/Metadata/
// APIError), trimmed to what this read-only admin surface actually
// needs.
type APIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *APIError   `json:"error,omitempty"`
}

// APIError mirrors the teacher's APIError.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LSNView is the JSON-facing projection of cmdlog.LogSN.
type LSNView struct {
	Filenum uint32 `json:"filenum"`
	Roffset uint64 `json:"roffset"`
}

// LSNResponse answers /v1/lsn.
type LSNResponse struct {
	WriteLSN LSNView `json:"write_lsn"`
	FlushLSN LSNView `json:"flush_lsn"`
	FsyncLSN LSNView `json:"fsync_lsn"`
}

// FileSizeResponse answers /v1/filesize.
type FileSizeResponse struct {
	Bytes uint64 `json:"bytes"`
}

// RotateRequest is the body of POST /v1/rotate.
type RotateRequest struct {
	Path string `json:"path" binding:"required"`
}

// CompleteRotationRequest is the body of POST /v1/rotate/complete.
type CompleteRotationRequest struct {
	Success bool `json:"success"`
}
