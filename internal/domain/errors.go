package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrNameTaken           = errors.New("name already taken")
	ErrInvalidName         = errors.New("invalid name")
	ErrPortConflict        = errors.New("port already assigned to another instance")
	ErrOperationInProgress = errors.New("another operation is in progress for this instance")
	ErrNotInstalled        = errors.New("server is not installed")
	ErrAlreadyRunning      = errors.New("server is already running")
	ErrNotRunning          = errors.New("server is not running")
	ErrUpdateInProgress    = errors.New("an update is in progress for this instance")
	ErrDownloaderMissing   = errors.New("downloader tool not found")
	ErrAuthExpired         = errors.New("downloader authentication expired")
	ErrCorruptArchive      = errors.New("downloaded archive is corrupt or incomplete")
	ErrInvalidBackup       = errors.New("backup does not contain a server folder")
	ErrBackupFailed        = errors.New("backup failed")
	ErrConnection          = errors.New("connection error")
	ErrNoServerState       = errors.New("no server files to back up")
	ErrDegraded            = errors.New("instance left in a degraded state")
	ErrInvalidPath         = errors.New("path outside instance directory")
	ErrInvalidStartup      = errors.New("invalid startup settings")
	ErrStopTimeout         = errors.New("server did not stop in time")
)
