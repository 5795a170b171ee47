// Package zulip mirrors items and projects into a Zulip realm. New items
// and backlog items are single messages in the project's backlog topic;
// every other item type gets a topic of its own once it is updated.
package zulip

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"sprintsync/internal/domain"
	"sprintsync/internal/plugins"
	zapi "sprintsync/internal/zulip"
)

const Name = "zulip"

// Item metadata keys.
const (
	MetaMsgID         = "msg_id"
	MetaTopic         = "topic"
	MetaRepresentedAs = "represented_as"

	// MetaStreamID is stored on projects.
	MetaStreamID = "stream_id"

	reprBacklog = "backlog"
	reprTask    = "task"
)

// transition classifies an update by where the item is and where it was.
type transition int

const (
	backlogUpdate transition = 1 << iota
	sprintUpdate
	switchToBacklog
	switchToTask
)

func (t transition) String() string {
	switch t {
	case backlogUpdate:
		return "backlog_update"
	case sprintUpdate:
		return "sprint_update"
	case switchToBacklog:
		return "switch_to_backlog"
	case switchToTask:
		return "switch_to_task"
	}
	return "unknown"
}

func representation(t domain.ItemType) string {
	if t == domain.TypeBacklog {
		return reprBacklog
	}
	return reprTask
}

// classify compares the representation item needs against the one on
// record. Items stored without represented_as fall back to old's type.
func classify(item, old domain.WorkItem, meta map[string]string) transition {
	want := representation(item.Type)
	have := meta[MetaRepresentedAs]
	if have != reprBacklog && have != reprTask {
		have = representation(old.Type)
	}
	switch {
	case want == reprBacklog && have == reprBacklog:
		return backlogUpdate
	case want == reprTask && have == reprTask:
		return sprintUpdate
	case want == reprBacklog:
		return switchToBacklog
	default:
		return switchToTask
	}
}

// Factory builds the item and project plugins against the configured realm.
func Factory(deps plugins.Deps) (plugins.Bundle, error) {
	if deps.Config == nil {
		return plugins.Bundle{}, fmt.Errorf("zulip: missing config")
	}
	client := zapi.New(deps.Config.Zulip, deps.HTTPClient)
	log := deps.Logger.With().Str("plugin", Name).Logger()
	return plugins.Bundle{
		Item:    NewItemPlugin(client, log),
		Project: NewProjectPlugin(client, log, append(append([]string(nil), deps.Config.Zulip.AdminEmails...), deps.Config.Zulip.Email)),
	}, nil
}

// ItemPlugin keeps one chat representation per item.
type ItemPlugin struct {
	plugins.NopItemHooks
	chat zapi.Messenger
	log  zerolog.Logger
}

func NewItemPlugin(chat zapi.Messenger, log zerolog.Logger) *ItemPlugin {
	return &ItemPlugin{chat: chat, log: log}
}

func (p *ItemPlugin) Name() string { return Name }

// BeforeCreate drops any caller-supplied chat metadata.
func (p *ItemPlugin) BeforeCreate(_ context.Context, v domain.ItemView) (domain.ItemView, error) {
	delete(v.Item.PluginMeta, MetaMsgID)
	delete(v.Item.PluginMeta, MetaTopic)
	delete(v.Item.PluginMeta, MetaRepresentedAs)
	return v, nil
}

// AfterCreate posts every new item to the backlog topic. Items of other
// types move to a topic of their own on their next update.
func (p *ItemPlugin) AfterCreate(ctx context.Context, v domain.ItemView) (domain.ItemView, error) {
	p.send(ctx, &v, BacklogTopic, BacklogContent(v), reprBacklog)
	return v, nil
}

// BeforeUpdate brings the chat representation in line with the updated
// item. The resulting metadata is returned on the item so it is stored with
// the same write.
func (p *ItemPlugin) BeforeUpdate(ctx context.Context, _ string, v, old domain.ItemView) (domain.ItemView, error) {
	meta := v.Item.PluginMeta
	if meta[MetaMsgID] == "" {
		meta = old.Item.PluginMeta
	}
	v.Item.PluginMeta = domain.CloneMeta(meta)
	msgID, ok := parseMsgID(v.Item.PluginMeta)
	if !ok {
		p.log.Debug().Str("slug", v.Item.Slug).Msg("no chat message on record, posting")
		p.post(ctx, &v)
		return v, nil
	}

	t := classify(v.Item, old.Item, v.Item.PluginMeta)
	log := p.log.With().Str("slug", v.Item.Slug).Stringer("transition", t).Logger()
	stream := StreamName(v.ProjectName, v.ProjectPin)

	switch t {
	case backlogUpdate:
		if err := p.chat.UpdateMessage(ctx, msgID, BacklogTopic, BacklogContent(v), zapi.PropagateChangeOne); err != nil {
			log.Error().Err(err).Msg("update backlog message")
			return v, nil
		}
		setMeta(&v, msgID, BacklogTopic, reprBacklog)

	case sprintUpdate:
		topic := TaskTopic(v)
		if err := p.chat.UpdateMessage(ctx, msgID, topic, TaskContent(v), zapi.PropagateChangeAll); err != nil {
			log.Error().Err(err).Msg("update task message")
			return v, nil
		}
		setMeta(&v, msgID, topic, reprTask)

	case switchToBacklog:
		topic := v.Item.PluginMeta[MetaTopic]
		if topic == "" || topic == BacklogTopic {
			topic = TaskTopic(old)
		}
		streamID, err := p.chat.StreamID(ctx, stream)
		if err != nil {
			log.Error().Err(err).Msg("resolve stream")
			return v, nil
		}
		if err := p.chat.DeleteTopic(ctx, streamID, topic); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("delete task topic")
			return v, nil
		}
		forget(&v)
		id, err := p.chat.SendMessage(ctx, stream, BacklogTopic, BacklogContent(v))
		if err != nil {
			log.Error().Err(err).Msg("post backlog message")
			return v, nil
		}
		setMeta(&v, id, BacklogTopic, reprBacklog)

	case switchToTask:
		if err := p.chat.DeleteMessage(ctx, msgID); err != nil {
			log.Error().Err(err).Msg("delete backlog message")
			return v, nil
		}
		forget(&v)
		topic := TaskTopic(v)
		id, err := p.chat.SendMessage(ctx, stream, topic, TaskContent(v))
		if err != nil {
			log.Error().Err(err).Msg("post task message")
			return v, nil
		}
		setMeta(&v, id, topic, reprTask)
	}
	return v, nil
}

// post sends the item in the representation its type calls for.
func (p *ItemPlugin) post(ctx context.Context, v *domain.ItemView) {
	if representation(v.Item.Type) == reprBacklog {
		p.send(ctx, v, BacklogTopic, BacklogContent(*v), reprBacklog)
		return
	}
	p.send(ctx, v, TaskTopic(*v), TaskContent(*v), reprTask)
}

// send posts content under topic and stores the result in v's metadata.
// Failures are logged and leave v unchanged.
func (p *ItemPlugin) send(ctx context.Context, v *domain.ItemView, topic, content, repr string) {
	stream := StreamName(v.ProjectName, v.ProjectPin)
	id, err := p.chat.SendMessage(ctx, stream, topic, content)
	if err != nil {
		p.log.Error().Err(err).Str("slug", v.Item.Slug).Str("stream", stream).Msg("post item")
		return
	}
	p.log.Info().Str("slug", v.Item.Slug).Int64("msg_id", id).Msg("item posted")
	setMeta(v, id, topic, repr)
}

func parseMsgID(meta map[string]string) (int64, bool) {
	raw := meta[MetaMsgID]
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func setMeta(v *domain.ItemView, msgID int64, topic, repr string) {
	if v.Item.PluginMeta == nil {
		v.Item.PluginMeta = map[string]string{}
	}
	v.Item.PluginMeta[MetaMsgID] = strconv.FormatInt(msgID, 10)
	v.Item.PluginMeta[MetaTopic] = topic
	v.Item.PluginMeta[MetaRepresentedAs] = repr
}

// forget removes the reference to a chat message that no longer exists.
func forget(v *domain.ItemView) {
	delete(v.Item.PluginMeta, MetaMsgID)
	delete(v.Item.PluginMeta, MetaTopic)
	delete(v.Item.PluginMeta, MetaRepresentedAs)
}

// ProjectPlugin opens a stream for every new project.
type ProjectPlugin struct {
	plugins.NopProjectHooks
	chat    zapi.Messenger
	log     zerolog.Logger
	members []string
}

// NewProjectPlugin returns a plugin that subscribes members (plus the
// project owner) to each new project stream.
func NewProjectPlugin(chat zapi.Messenger, log zerolog.Logger, members []string) *ProjectPlugin {
	return &ProjectPlugin{chat: chat, log: log, members: members}
}

func (p *ProjectPlugin) Name() string { return Name }

func (p *ProjectPlugin) AfterCreate(ctx context.Context, v domain.ProjectView) (domain.ProjectView, error) {
	stream := StreamName(v.Project.Name, v.Project.Pin)
	principals := append([]string(nil), p.members...)
	if v.OwnerEmail != "" {
		principals = append(principals, v.OwnerEmail)
	}
	log := p.log.With().Str("project", v.Project.Slug).Str("stream", stream).Logger()
	if _, err := p.chat.CreateStream(ctx, stream, v.Project.Description, principals); err != nil {
		log.Error().Err(err).Msg("create stream")
		return v, nil
	}
	log.Info().Msg("stream created")

	id, err := p.chat.StreamID(ctx, stream)
	if err != nil {
		log.Warn().Err(err).Msg("resolve stream id")
		return v, nil
	}
	if v.Project.PluginMeta == nil {
		v.Project.PluginMeta = map[string]string{}
	}
	v.Project.PluginMeta[MetaStreamID] = strconv.FormatInt(id, 10)
	return v, nil
}
