package storage

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

func TestHasErrorCode(t *testing.T) {
	exists := &azcore.ResponseError{ErrorCode: string(aztables.TableAlreadyExists), StatusCode: http.StatusConflict}
	wrapped := fmt.Errorf("create: %w", exists)

	if !hasErrorCode(wrapped, string(aztables.TableAlreadyExists)) {
		t.Fatalf("expected wrapped TableAlreadyExists to match")
	}
	if hasErrorCode(wrapped, queueAlreadyExists) {
		t.Fatalf("queue code should not match a table error")
	}
	if hasErrorCode(errors.New("TableAlreadyExists"), string(aztables.TableAlreadyExists)) {
		t.Fatalf("plain errors carry no service code")
	}
	if !isStatus(wrapped, http.StatusConflict) {
		t.Fatalf("expected status 409 to be detected")
	}
}
