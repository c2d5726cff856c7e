// Package model makes sure the hand landmarker model is available on disk.
package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Default location and source of the MediaPipe hand landmarker model.
const (
	DefaultPath = "hand_landmarker.task"
	DefaultURL  = "https://storage.googleapis.com/mediapipe-models/hand_landmarker/hand_landmarker/float16/1/hand_landmarker.task"
)

// Ensure returns path once the model file exists there, downloading it from
// url first if it is missing. There is no retry: a failed download is
// returned to the caller.
func Ensure(ctx context.Context, log logrus.FieldLogger, path, url string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	log.WithFields(logrus.Fields{"url": url, "path": path}).Info("Downloading hand landmarker model")
	n, err := download(ctx, http.DefaultClient, url, path)
	if err != nil {
		return "", fmt.Errorf("download model: %w", err)
	}
	log.WithField("bytes", n).Info("Model downloaded")

	return path, nil
}

// download fetches srcURL into targetFile via a temporary file, so an
// interrupted transfer never leaves a partial model at targetFile.
func download(ctx context.Context, client *http.Client, srcURL, targetFile string) (int64, error) {
	if dir := filepath.Dir(targetFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP error %v", resp.Status)
	}

	tempFile := targetFile + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(file, resp.Body)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tempFile)
		return 0, err
	}

	return n, os.Rename(tempFile, targetFile)
}
