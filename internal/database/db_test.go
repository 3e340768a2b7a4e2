package database

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestOpen_InvalidDSN(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	_, err := Open("postgres://nonexistent-host:5432/doesnotexist?sslmode=disable&connect_timeout=1", logger)
	assert.Error(t, err)
}
