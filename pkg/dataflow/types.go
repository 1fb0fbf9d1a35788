/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package dataflow holds the types shared between the timestamper, the
// source connectors and the persistent timestamp store.
package dataflow

import "fmt"

// SourceInstanceID uniquely identifies one tracked ingestion instance,
// a (source, view) pair. It is never reused for a different source while
// the instance is live.
type SourceInstanceID struct {
	SourceID string `json:"sourceId" mapstructure:"sourceId"`
	ViewID   string `json:"viewId" mapstructure:"viewId"`
}

func (id SourceInstanceID) String() string {
	return fmt.Sprintf("%s/%s", id.SourceID, id.ViewID)
}

// Consistency describes how timestamps are assigned to a source. Exactly
// one of the fields must be set, and it is immutable for the lifetime of
// the source instance.
type Consistency struct {
	RealTime     *RealTimeConsistency     `json:"realTime,omitempty" mapstructure:"realTime"`
	BringYourOwn *BringYourOwnConsistency `json:"bringYourOwn,omitempty" mapstructure:"bringYourOwn"`
}

// RealTimeConsistency means the timestamper itself observes source
// progress by polling watermarks.
type RealTimeConsistency struct{}

// BringYourOwnConsistency means an external producer declares
// timestamp/offset boundaries on a separate control topic.
type BringYourOwnConsistency struct {
	ControlTopic string `json:"controlTopic" mapstructure:"controlTopic"`
}

// Envelope is the record envelope of a BYO control stream.
type Envelope string

const (
	EnvelopeNone Envelope = "None"
	// EnvelopeDebezium is recognized but not implemented.
	EnvelopeDebezium Envelope = "Debezium"
)

// SourceConnector describes how to reach an external source. Exactly one
// of the fields must be set.
type SourceConnector struct {
	Kafka   *KafkaSourceConnector   `json:"kafka,omitempty" mapstructure:"kafka"`
	File    *FileSourceConnector    `json:"file,omitempty" mapstructure:"file"`
	Kinesis *KinesisSourceConnector `json:"kinesis,omitempty" mapstructure:"kinesis"`
}

// Kind returns a human readable name of the connector variant.
func (sc SourceConnector) Kind() string {
	switch {
	case sc.Kafka != nil:
		return "kafka"
	case sc.File != nil:
		return "file"
	case sc.Kinesis != nil:
		return "kinesis"
	default:
		return "unknown"
	}
}

type KafkaSourceConnector struct {
	Brokers []string `json:"brokers" mapstructure:"brokers"`
	Topic   string   `json:"topic" mapstructure:"topic"`
	// CACertFile, when set, enables TLS trusting the given CA.
	CACertFile string `json:"caCertFile,omitempty" mapstructure:"caCertFile"`
}

type FileSourceConnector struct {
	Path string `json:"path" mapstructure:"path"`
}

type KinesisSourceConnector struct {
	StreamName      string `json:"streamName" mapstructure:"streamName"`
	Region          string `json:"region" mapstructure:"region"`
	AccessKeyID     string `json:"accessKeyId" mapstructure:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey" mapstructure:"secretAccessKey"`
}
