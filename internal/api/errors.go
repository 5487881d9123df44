package api

import (
	"errors"
	"net/http"

	"github.com/flmngr/flmngr-server-go/internal/apperr"
	"github.com/flmngr/flmngr-server-go/internal/filemanager"
)

// Widget message codes.
const (
	codeActionNotFound        = 0
	codeMalformedRequest      = 4
	codeFileSizeExceeds       = 6
	codeWritingFileError      = 8
	codeUnableToDeleteFile    = 10
	codeFilesNotSet           = 12
	codeFileAlreadyExists     = 15
	codeImageProcessError     = 18
	codeFileDoesNotExist      = 10001
	codeUnableToWritePreview  = 10002
	codeUnableToCreatePreview = 10003
	codeInvalidSymbols        = 10004
	codeIncorrectRoot         = 10005
	codeFileIsNotImage        = 10006
	codeRootDirDoesNotExist   = 10007
	codeUnableToList          = 10008
	codeUnableToDeleteDir     = 10009
	codeUnableToCreateDir     = 10010
	codeUnableToRename        = 10011
	codeErrorOnCopying        = 10013
	codeErrorOnMoving         = 10014
	codeNotNeededToUpdate     = 10015
)

// Message is the error half of the response envelope.
type Message struct {
	Code int   `json:"code"`
	Args []any `json:"args,omitempty"`
}

// sourceCodes maps the operation of a source tree failure to its code.
var sourceCodes = map[string]int{
	filemanager.OpList:      codeUnableToList,
	filemanager.OpDirList:   codeUnableToList,
	filemanager.OpCreateDir: codeUnableToCreateDir,
	filemanager.OpDeleteDir: codeUnableToDeleteDir,
	filemanager.OpDelete:    codeUnableToDeleteFile,
	filemanager.OpRename:    codeUnableToRename,
	filemanager.OpMoveDir:   codeUnableToRename,
	filemanager.OpMoveFiles: codeErrorOnMoving,
	filemanager.OpCopy:      codeErrorOnCopying,
	filemanager.OpUpload:    codeWritingFileError,
	filemanager.OpResize:    codeImageProcessError,
	filemanager.OpOriginal:  codeFileDoesNotExist,
	"listing.ListPage":      codeUnableToList,
	"info":                  codeUnableToCreatePreview,
	"preview":               codeUnableToCreatePreview,
	"render":                codeUnableToCreatePreview,
	"open":                  codeUnableToCreatePreview,
}

// messageFor converts an error into a widget message. A nil message means the
// error is not the widget's business and is answered with the given HTTP
// status instead.
func messageFor(err error) (*Message, int) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return &Message{Code: codeFileSizeExceeds, Args: []any{"", nil, tooBig.Limit}}, http.StatusOK
	}

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return nil, http.StatusInternalServerError
	}
	withPath := func(code int) *Message {
		if ae.Path == "" {
			return &Message{Code: code}
		}
		return &Message{Code: code, Args: []any{ae.Path}}
	}

	switch ae.Kind {
	case apperr.PathValidation:
		if errors.Is(err, filemanager.ErrIncorrectRoot) {
			return &Message{Code: codeIncorrectRoot}, http.StatusOK
		}
		return &Message{Code: codeInvalidSymbols}, http.StatusOK
	case apperr.NotFound:
		if errors.Is(err, filemanager.ErrRootDirMissing) {
			return &Message{Code: codeRootDirDoesNotExist}, http.StatusOK
		}
		return withPath(codeFileDoesNotExist), http.StatusOK
	case apperr.MalformedRequest:
		if errors.Is(err, filemanager.ErrNoFile) {
			return &Message{Code: codeFilesNotSet}, http.StatusOK
		}
		return &Message{Code: codeMalformedRequest}, http.StatusOK
	case apperr.AlreadyExists:
		return withPath(codeFileAlreadyExists), http.StatusOK
	case apperr.ImageProcessing:
		return &Message{Code: codeImageProcessError}, http.StatusOK
	case apperr.CacheWrite:
		return &Message{Code: codeUnableToWritePreview}, http.StatusOK
	case apperr.NotImage:
		return &Message{Code: codeFileIsNotImage}, http.StatusOK
	case apperr.NotNeededToUpdate:
		return &Message{Code: codeNotNeededToUpdate}, http.StatusOK
	case apperr.ActionNotFound:
		return &Message{Code: codeActionNotFound}, http.StatusOK
	case apperr.SourceIO:
		if code, ok := sourceCodes[ae.Op]; ok {
			return withPath(code), http.StatusOK
		}
		return nil, http.StatusInternalServerError
	case apperr.Unauthorized:
		return &Message{Code: http.StatusUnauthorized}, http.StatusUnauthorized
	default:
		return nil, http.StatusInternalServerError
	}
}
