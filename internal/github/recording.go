package github

import (
	"context"
	"sync"
)

// RecordingClientFactory wraps another factory and keeps a copy of every
// comment body its clients post. With dryRun set nothing is written to
// GitHub at all; reads still go through.
type RecordingClientFactory struct {
	inner  ClientFactory
	dryRun bool

	mu       sync.Mutex
	comments []string
}

// NewRecordingClientFactory wraps inner.
func NewRecordingClientFactory(inner ClientFactory, dryRun bool) *RecordingClientFactory {
	return &RecordingClientFactory{inner: inner, dryRun: dryRun}
}

func (f *RecordingClientFactory) ForInstallation(ctx context.Context, installationID int64) (Client, error) {
	client, err := f.inner.ForInstallation(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return &recordingClient{Client: client, factory: f}, nil
}

func (f *RecordingClientFactory) Mode() string { return f.inner.Mode() }

func (f *RecordingClientFactory) CountInstallations(ctx context.Context) (int, error) {
	return f.inner.CountInstallations(ctx)
}

// Comments returns the recorded bodies in posting order.
func (f *RecordingClientFactory) Comments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments...)
}

func (f *RecordingClientFactory) record(body string) {
	f.mu.Lock()
	f.comments = append(f.comments, body)
	f.mu.Unlock()
}

type recordingClient struct {
	Client
	factory *RecordingClientFactory
}

func (c *recordingClient) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	c.factory.record(body)
	if c.factory.dryRun {
		return nil
	}
	return c.Client.CreateComment(ctx, owner, repo, number, body)
}

func (c *recordingClient) CreateCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) error {
	if c.factory.dryRun {
		return nil
	}
	return c.Client.CreateCommentReaction(ctx, owner, repo, commentID, content)
}
