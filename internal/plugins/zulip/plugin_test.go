package zulip

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintsync/internal/config"
	"sprintsync/internal/domain"
	"sprintsync/internal/plugins"
	zapi "sprintsync/internal/zulip"
)

type fakeMessenger struct {
	calls  []string
	nextID int64
	fail   map[string]error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{nextID: 100, fail: map[string]error{}}
}

func (f *fakeMessenger) record(format string, args ...any) string {
	call := fmt.Sprintf(format, args...)
	f.calls = append(f.calls, call)
	return call
}

func (f *fakeMessenger) failure(op string) error {
	return f.fail[op]
}

func (f *fakeMessenger) CreateStream(_ context.Context, name, _ string, principals []string) (zapi.StreamResult, error) {
	f.record("create_stream %s %v", name, principals)
	return zapi.StreamResult{}, f.failure("create_stream")
}

func (f *fakeMessenger) SendMessage(_ context.Context, stream, topic, _ string) (int64, error) {
	f.record("send %s|%s", stream, topic)
	if err := f.failure("send"); err != nil {
		return 0, err
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeMessenger) UpdateMessage(_ context.Context, id int64, topic, _, mode string) error {
	f.record("update %d|%s|%s", id, topic, mode)
	return f.failure("update")
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, id int64) error {
	f.record("delete_message %d", id)
	return f.failure("delete_message")
}

func (f *fakeMessenger) StreamID(_ context.Context, name string) (int64, error) {
	f.record("stream_id %s", name)
	if err := f.failure("stream_id"); err != nil {
		return 0, err
	}
	return 9, nil
}

func (f *fakeMessenger) DeleteTopic(_ context.Context, streamID int64, topic string) error {
	f.record("delete_topic %d|%s", streamID, topic)
	return f.failure("delete_topic")
}

func countPrefix(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func sampleView(t domain.ItemType) domain.ItemView {
	return domain.ItemView{
		Item: domain.WorkItem{
			ID:          "i1",
			Slug:        "core-S1-ab12",
			Title:       "Fix login",
			Description: "details",
			ProjectSlug: "core",
			Progress:    domain.ProgressEmpty,
			Priority:    domain.PriorityHi,
			Status:      domain.StatusNew,
			Type:        t,
			Category:    domain.CategoryBugs,
			DueDate:     "2024-01-03",
		},
		ProjectName:  "Core",
		AssigneeName: "Ada",
	}
}

func TestFormatting(t *testing.T) {
	v := sampleView(domain.TypeBacklog)
	assert.Equal(t, "PRJ/Core", StreamName("Core", false))
	assert.Equal(t, "📌PRJ/Core", StreamName("Core", true))
	assert.Equal(t, "☀️ 🔴 ⬜⬜⬜ **[core-S1-ab12]** Fix login  **:time::03-01-2024** @**Ada** 🐞", BacklogContent(v))
	assert.Equal(t, "⬜⬜⬜ Fix login 🐞  🔴 ☀️", TaskTopic(v))
	assert.Equal(t, "[core-S1-ab12] **:time::03-01-2024** @**Ada**\ndetails", TaskContent(v))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		now, old domain.ItemType
		repr     string
		want     transition
	}{
		{"backlog stays", domain.TypeBacklog, domain.TypeBacklog, "backlog", backlogUpdate},
		{"task stays", domain.TypeTask, domain.TypeTask, "task", sprintUpdate},
		{"task to backlog", domain.TypeBacklog, domain.TypeTask, "task", switchToBacklog},
		{"backlog to task", domain.TypeTask, domain.TypeBacklog, "backlog", switchToTask},
		{"draft to self", domain.TypeSelf, domain.TypeDraft, "task", sprintUpdate},
		{"new draft leaves backlog topic", domain.TypeDraft, domain.TypeDraft, "backlog", switchToTask},
		{"failed switch retried", domain.TypeTask, domain.TypeTask, "backlog", switchToTask},
		{"no flag falls back to type", domain.TypeTask, domain.TypeBacklog, "", switchToTask},
		{"no flag same type", domain.TypeBacklog, domain.TypeBacklog, "", backlogUpdate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta := map[string]string{}
			if tc.repr != "" {
				meta[MetaRepresentedAs] = tc.repr
			}
			got := classify(domain.WorkItem{Type: tc.now}, domain.WorkItem{Type: tc.old}, meta)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBeforeCreateClearsMeta(t *testing.T) {
	p := NewItemPlugin(newFakeMessenger(), zerolog.Nop())
	v := sampleView(domain.TypeBacklog)
	v.Item.PluginMeta = map[string]string{MetaMsgID: "1", "other": "x"}
	out, err := p.BeforeCreate(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"other": "x"}, out.Item.PluginMeta)
}

func TestAfterCreatePostsToBacklogTopic(t *testing.T) {
	m := newFakeMessenger()
	p := NewItemPlugin(m, zerolog.Nop())

	out, err := p.AfterCreate(context.Background(), sampleView(domain.TypeBacklog))
	require.NoError(t, err)
	assert.Equal(t, "101", out.Item.PluginMeta[MetaMsgID])
	assert.Equal(t, BacklogTopic, out.Item.PluginMeta[MetaTopic])
	assert.Equal(t, "backlog", out.Item.PluginMeta[MetaRepresentedAs])

	out, err = p.AfterCreate(context.Background(), sampleView(domain.TypeDraft))
	require.NoError(t, err)
	assert.Equal(t, "102", out.Item.PluginMeta[MetaMsgID])
	assert.Equal(t, BacklogTopic, out.Item.PluginMeta[MetaTopic])
	assert.Equal(t, "backlog", out.Item.PluginMeta[MetaRepresentedAs])

	assert.Equal(t, []string{
		"send PRJ/Core|" + BacklogTopic,
		"send PRJ/Core|" + BacklogTopic,
	}, m.calls)
}

func TestCreatedTaskMovesToOwnTopicOnUpdate(t *testing.T) {
	m := newFakeMessenger()
	p := NewItemPlugin(m, zerolog.Nop())

	created, err := p.AfterCreate(context.Background(), sampleView(domain.TypeTask))
	require.NoError(t, err)
	v := created.Clone()
	v.Item.Title = "Fix login flow"

	out, err := p.BeforeUpdate(context.Background(), "i1", v, created)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"send PRJ/Core|" + BacklogTopic,
		"delete_message 101",
		"send PRJ/Core|" + TaskTopic(v),
	}, m.calls)
	assert.Equal(t, "102", out.Item.PluginMeta[MetaMsgID])
	assert.Equal(t, "task", out.Item.PluginMeta[MetaRepresentedAs])
}

func TestAfterCreateTransportFailureLeavesItem(t *testing.T) {
	m := newFakeMessenger()
	m.fail["send"] = &zapi.TransportError{Op: "send_message", Status: 500}
	p := NewItemPlugin(m, zerolog.Nop())

	out, err := p.AfterCreate(context.Background(), sampleView(domain.TypeBacklog))
	require.NoError(t, err)
	assert.Empty(t, out.Item.PluginMeta)
}

func TestBacklogUpdatePatchesInPlace(t *testing.T) {
	m := newFakeMessenger()
	p := NewItemPlugin(m, zerolog.Nop())
	old := sampleView(domain.TypeBacklog)
	old.Item.PluginMeta = map[string]string{MetaMsgID: "55", MetaTopic: BacklogTopic, MetaRepresentedAs: "backlog"}
	v := old.Clone()
	v.Item.Title = "Fix logout"

	out, err := p.BeforeUpdate(context.Background(), "i1", v, old)
	require.NoError(t, err)
	assert.Equal(t, []string{"update 55|" + BacklogTopic + "|change_one"}, m.calls)
	assert.Equal(t, "55", out.Item.PluginMeta[MetaMsgID])
}

func TestSprintUpdateMovesTopic(t *testing.T) {
	m := newFakeMessenger()
	p := NewItemPlugin(m, zerolog.Nop())
	old := sampleView(domain.TypeTask)
	old.Item.PluginMeta = map[string]string{MetaMsgID: "55", MetaTopic: TaskTopic(old), MetaRepresentedAs: "task"}
	v := old.Clone()
	v.Item.Progress = domain.ProgressReady
	v.Item.Status = domain.StatusCheckedIn

	out, err := p.BeforeUpdate(context.Background(), "i1", v, old)
	require.NoError(t, err)
	newTopic := TaskTopic(v)
	assert.Equal(t, []string{"update 55|" + newTopic + "|change_all"}, m.calls)
	assert.Equal(t, newTopic, out.Item.PluginMeta[MetaTopic])
	assert.Equal(t, "55", out.Item.PluginMeta[MetaMsgID])
}

func TestSwitchToTaskDeletesOnceAndPostsOnce(t *testing.T) {
	m := newFakeMessenger()
	p := NewItemPlugin(m, zerolog.Nop())
	old := sampleView(domain.TypeBacklog)
	old.Item.PluginMeta = map[string]string{MetaMsgID: "55", MetaTopic: BacklogTopic, MetaRepresentedAs: "backlog"}
	v := old.Clone()
	v.Item.Type = domain.TypeTask

	out, err := p.BeforeUpdate(context.Background(), "i1", v, old)
	require.NoError(t, err)
	assert.Equal(t, 1, countPrefix(m.calls, "delete_message 55"))
	assert.Equal(t, 1, countPrefix(m.calls, "send "))
	assert.Len(t, m.calls, 2)
	assert.Equal(t, "101", out.Item.PluginMeta[MetaMsgID])
	assert.Equal(t, TaskTopic(v), out.Item.PluginMeta[MetaTopic])
	assert.Equal(t, "task", out.Item.PluginMeta[MetaRepresentedAs])
	assert.Equal(t, "55", old.Item.PluginMeta[MetaMsgID])
}

func TestSwitchToBacklogDeletesTopicAndPosts(t *testing.T) {
	m := newFakeMessenger()
	p := NewItemPlugin(m, zerolog.Nop())
	old := sampleView(domain.TypeTask)
	oldTopic := TaskTopic(old)
	old.Item.PluginMeta = map[string]string{MetaMsgID: "55", MetaTopic: oldTopic, MetaRepresentedAs: "task"}
	v := old.Clone()
	v.Item.Type = domain.TypeBacklog

	out, err := p.BeforeUpdate(context.Background(), "i1", v, old)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"stream_id PRJ/Core",
		"delete_topic 9|" + oldTopic,
		"send PRJ/Core|" + BacklogTopic,
	}, m.calls)
	assert.Equal(t, "101", out.Item.PluginMeta[MetaMsgID])
	assert.Equal(t, "backlog", out.Item.PluginMeta[MetaRepresentedAs])
}

func TestUpdateWithoutMetaPostsFresh(t *testing.T) {
	m := newFakeMessenger()
	p := NewItemPlugin(m, zerolog.Nop())
	old := sampleView(domain.TypeTask)
	v := old.Clone()
	v.Item.Title = "renamed"

	out, err := p.BeforeUpdate(context.Background(), "i1", v, old)
	require.NoError(t, err)
	assert.Equal(t, []string{"send PRJ/Core|" + TaskTopic(v)}, m.calls)
	assert.Equal(t, "101", out.Item.PluginMeta[MetaMsgID])
}

func TestSwitchFailureKeepsPriorMeta(t *testing.T) {
	m := newFakeMessenger()
	m.fail["delete_message"] = errors.New("boom")
	p := NewItemPlugin(m, zerolog.Nop())
	old := sampleView(domain.TypeBacklog)
	old.Item.PluginMeta = map[string]string{MetaMsgID: "55", MetaTopic: BacklogTopic, MetaRepresentedAs: "backlog"}
	v := old.Clone()
	v.Item.Type = domain.TypeTask

	out, err := p.BeforeUpdate(context.Background(), "i1", v, old)
	require.NoError(t, err)
	assert.Equal(t, old.Item.PluginMeta, out.Item.PluginMeta)
	assert.Zero(t, countPrefix(m.calls, "send "))
}

func TestEditAfterFailedSwitchRetriesSwitch(t *testing.T) {
	m := newFakeMessenger()
	m.fail["delete_message"] = errors.New("boom")
	p := NewItemPlugin(m, zerolog.Nop())
	old := sampleView(domain.TypeBacklog)
	old.Item.PluginMeta = map[string]string{MetaMsgID: "55", MetaTopic: BacklogTopic, MetaRepresentedAs: "backlog"}
	v := old.Clone()
	v.Item.Type = domain.TypeTask

	stored, err := p.BeforeUpdate(context.Background(), "i1", v, old)
	require.NoError(t, err)
	require.Equal(t, "backlog", stored.Item.PluginMeta[MetaRepresentedAs])

	delete(m.fail, "delete_message")
	m.calls = nil
	next := stored.Clone()
	next.Item.Title = "retitled"

	out, err := p.BeforeUpdate(context.Background(), "i1", next, stored)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"delete_message 55",
		"send PRJ/Core|" + TaskTopic(next),
	}, m.calls)
	assert.Zero(t, countPrefix(m.calls, "update "))
	assert.Equal(t, "101", out.Item.PluginMeta[MetaMsgID])
	assert.Equal(t, "task", out.Item.PluginMeta[MetaRepresentedAs])
}

func TestSwitchPostFailureForgetsDeletedMessage(t *testing.T) {
	m := newFakeMessenger()
	m.fail["send"] = errors.New("boom")
	p := NewItemPlugin(m, zerolog.Nop())
	old := sampleView(domain.TypeBacklog)
	old.Item.PluginMeta = map[string]string{MetaMsgID: "55", MetaTopic: BacklogTopic, MetaRepresentedAs: "backlog"}
	v := old.Clone()
	v.Item.Type = domain.TypeTask

	out, err := p.BeforeUpdate(context.Background(), "i1", v, old)
	require.NoError(t, err)
	assert.Empty(t, out.Item.PluginMeta[MetaMsgID])
}

func TestProjectAfterCreateOpensStream(t *testing.T) {
	m := newFakeMessenger()
	p := NewProjectPlugin(m, zerolog.Nop(), []string{"admin@example.com", "bot@example.com"})
	v := domain.ProjectView{
		Project:    domain.Project{Slug: "core", Name: "Core", Pin: true, Description: "d"},
		OwnerEmail: "owner@example.com",
	}
	out, err := p.AfterCreate(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"create_stream 📌PRJ/Core [admin@example.com bot@example.com owner@example.com]",
		"stream_id 📌PRJ/Core",
	}, m.calls)
	assert.Equal(t, "9", out.Project.PluginMeta[MetaStreamID])
}

func TestProjectAfterCreateFailureIsSoft(t *testing.T) {
	m := newFakeMessenger()
	m.fail["create_stream"] = errors.New("down")
	p := NewProjectPlugin(m, zerolog.Nop(), nil)
	out, err := p.AfterCreate(context.Background(), domain.ProjectView{Project: domain.Project{Name: "Core"}})
	require.NoError(t, err)
	assert.Empty(t, out.Project.PluginMeta)
}

func TestFactoryBuildsBothHookSets(t *testing.T) {
	cfg := config.Default()
	cfg.Zulip.APIURL = "http://localhost"
	b, err := Factory(plugins.Deps{Config: cfg})
	require.NoError(t, err)
	require.NotNil(t, b.Item)
	require.NotNil(t, b.Project)
	assert.Equal(t, Name, b.Item.Name())

	_, err = Factory(plugins.Deps{})
	require.Error(t, err)
}
