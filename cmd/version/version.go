// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Build variables overridden via ldflags.
var (
	Version    = "unknown-version"
	GitCommit  = "unknown-commit"
	BuildTime  = "unknown-buildtime"
	APIVersion = "v1"
)

// Info is the build information reported by the status API.
type Info struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	GoVersion  string `json:"go_version"`
	GitCommit  string `json:"git_commit"`
	BuildTime  string `json:"build_time"`
	Platform   string `json:"platform"`
}

func GetInfo() Info {
	return Info{
		Version:    Version,
		APIVersion: APIVersion,
		GoVersion:  runtime.Version(),
		GitCommit:  GitCommit,
		BuildTime:  BuildTime,
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func BuildInfo() string {
	info := GetInfo()
	var builder strings.Builder
	fmt.Fprintln(&builder, "Version:\t", info.Version)
	fmt.Fprintln(&builder, "API version:\t", info.APIVersion)
	fmt.Fprintln(&builder, "Go version:\t", info.GoVersion)
	fmt.Fprintln(&builder, "Git commit:\t", info.GitCommit)
	fmt.Fprintln(&builder, "Built:\t\t", info.BuildTime)
	fmt.Fprintln(&builder, "OS/Arch:\t", info.Platform)
	return builder.String()
}
