// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package p7m extracts the signed payload of PKCS#7 / CMS envelopes (P7M files).
//
// Extraction is delegated to an external cryptographic toolkit (openssl by
// default). The [Extractor] tries an ordered chain of [Strategy] values and
// stops at the first one whose final command exits successfully. Use [Convert]
// to write the payload to a file and [Extract] to receive it in memory.
//
// Configuration is done using the [Config], which holds the tool locations, the
// strategy chain, the logger, the telemetry hook and size limits.
package p7m
