package eventhub

//	MIT License
//
//	Copyright (c) Microsoft Corporation. All rights reserved.
//
//	Permission is hereby granted, free of charge, to any person obtaining a copy
//	of this software and associated documentation files (the "Software"), to deal
//	in the Software without restriction, including without limitation the rights
//	to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
//	copies of the Software, and to permit persons to whom the Software is
//	furnished to do so, subject to the following conditions:
//
//	The above copyright notice and this permission notice shall be included in all
//	copies or substantial portions of the Software.
//
//	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
//	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
//	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
//	AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
//	LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
//	OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
//	SOFTWARE

import (
	"fmt"
	"time"
)

const (
	// StartOfStream is the offset value representing the start of a partition's event stream.
	StartOfStream = "-1"

	// EndOfStream is the offset value representing the current end of a partition's event stream.
	// Consuming from here yields only events enqueued after the link was opened.
	EndOfStream = "@latest"

	amqpAnnotationFormat = "amqp.annotation.%s %s '%v'"

	offsetAnnotationName         = "x-opt-offset"
	sequenceNumberAnnotationName = "x-opt-sequence-number"
	enqueuedTimeAnnotationName   = "x-opt-enqueued-time"
)

// EventPosition is the position in a partition's event stream a consumer link begins reading from.
// The zero value is not valid; use one of the constructors.
type EventPosition struct {
	offset         *string
	sequenceNumber *int64
	enqueuedTime   *time.Time
	inclusive      bool
}

// EventPositionEarliest points to the first event retained in the partition.
func EventPositionEarliest() EventPosition {
	offset := StartOfStream
	return EventPosition{offset: &offset, inclusive: true}
}

// EventPositionLatest points to the end of the partition, so only newly enqueued events are read.
func EventPositionLatest() EventPosition {
	offset := EndOfStream
	return EventPosition{offset: &offset}
}

// EventPositionFromOffset points to the event at the given offset. If inclusive is set, the event
// at the offset itself is the first event read.
func EventPositionFromOffset(offset string, inclusive bool) EventPosition {
	return EventPosition{offset: &offset, inclusive: inclusive}
}

// EventPositionFromSequenceNumber points to the event with the given sequence number. If inclusive
// is set, the event with that sequence number is the first event read.
func EventPositionFromSequenceNumber(sequenceNumber int64, inclusive bool) EventPosition {
	return EventPosition{sequenceNumber: &sequenceNumber, inclusive: inclusive}
}

// EventPositionFromEnqueuedTime points to the first event enqueued after the given time.
func EventPositionFromEnqueuedTime(enqueuedTime time.Time) EventPosition {
	return EventPosition{enqueuedTime: &enqueuedTime}
}

// filterExpression renders the position as the selector filter the service evaluates on attach.
func (p EventPosition) filterExpression() (string, error) {
	operator := ">"
	if p.inclusive {
		operator = ">="
	}

	switch {
	case p.offset != nil:
		return fmt.Sprintf(amqpAnnotationFormat, offsetAnnotationName, operator, *p.offset), nil
	case p.sequenceNumber != nil:
		return fmt.Sprintf(amqpAnnotationFormat, sequenceNumberAnnotationName, operator, *p.sequenceNumber), nil
	case p.enqueuedTime != nil:
		ms := p.enqueuedTime.UTC().UnixNano() / int64(time.Millisecond)
		return fmt.Sprintf(amqpAnnotationFormat, enqueuedTimeAnnotationName, operator, ms), nil
	default:
		return "", ArgumentError{Argument: "eventPosition", Reason: "no offset, sequence number or enqueued time was provided"}
	}
}
