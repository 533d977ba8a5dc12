// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewire is a container for 1-Wire bus masters and the DS18B20
// temperature sensor driver built on top of them.
//
// The bus masters (w1gpio, w1uart) implement periph.io's onewire.Bus so the
// device packages work against either transport.
package onewire
