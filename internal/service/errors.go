package service

import "errors"

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrPreviewNotReady = errors.New("preview task has not succeeded")
	ErrArchiveNotFound = errors.New("archive not found")
	ErrInvalidDownload = errors.New("invalid download url")
)
