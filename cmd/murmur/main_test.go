package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeApp struct {
	initErr   error
	runErr    error
	ran       bool
	shutdowns int
}

func (a *fakeApp) Init(context.Context) error { return a.initErr }

func (a *fakeApp) Run(context.Context) error {
	a.ran = true
	return a.runErr
}

func (a *fakeApp) Shutdown() { a.shutdowns++ }

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		app     *fakeApp
		wantErr string
		wantRan bool
	}{
		{"clean exit", &fakeApp{}, "", true},
		{"runtime error", &fakeApp{runErr: errors.New("listen: address in use")}, "address in use", true},
		{"init error", &fakeApp{initErr: errors.New("bad profile")}, "initialization: bad profile", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), tt.app)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantRan, tt.app.ran)
			assert.Equal(t, 1, tt.app.shutdowns, "app released exactly once")
		})
	}
}
