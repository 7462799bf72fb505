package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topic names:
//
//	job:<jobID>   events for one job definition
//	jobs          every job event
//	triggers      every trigger firing
//	firehose      everything
const (
	TopicJobs     = "jobs"
	TopicTriggers = "triggers"
	TopicFirehose = "firehose"
)

// JobTopic returns the topic name for one job definition.
func JobTopic(jobID string) string { return "job:" + jobID }

// TopicRegistry manages subscriber sets per topic. It is safe for
// concurrent use.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber // topic → subscriberID → subscriber
}

// NewTopicRegistry creates an empty topic registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{topics: make(map[string]map[string]*Subscriber)}
}

// Subscribe adds sub to topic.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		subs = make(map[string]*Subscriber)
		tr.topics[topic] = subs
	}
	subs[sub.ID()] = sub
}

// UnsubscribeAll removes a subscriber from every topic and drops topics
// left empty.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for topic, subs := range tr.topics {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(tr.topics, topic)
		}
	}
}

// Broadcast delivers evt once to every subscriber on any of topics and
// returns how many accepted it.
func (tr *TopicRegistry) Broadcast(topics []string, evt *Event) int {
	tr.mu.RLock()
	seen := make(map[string]*Subscriber)
	for _, topic := range topics {
		for id, sub := range tr.topics[topic] {
			seen[id] = sub
		}
	}
	tr.mu.RUnlock()

	delivered := 0
	for _, sub := range seen {
		if sub.send(evt) {
			delivered++
		}
	}
	return delivered
}

// TopicCount returns the number of topics with at least one subscriber.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}

// SubscriberCount returns the number of subscribers on a topic.
func (tr *TopicRegistry) SubscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics[topic])
}

// resolveTopics lists every topic evt is published on.
func resolveTopics(evt *Event) []string {
	topics := []string{TopicFirehose}
	switch {
	case strings.HasPrefix(string(evt.Type), "job."):
		topics = append(topics, TopicJobs)
	case strings.HasPrefix(string(evt.Type), "trigger."):
		topics = append(topics, TopicTriggers)
	}
	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}
	return topics
}

// ValidateTopic checks whether topic names something the broker publishes.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicJobs, TopicTriggers, TopicFirehose:
		return nil
	}
	kind, jobID, ok := strings.Cut(topic, ":")
	if !ok || kind != "job" || jobID == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}
	return nil
}
