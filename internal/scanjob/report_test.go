package scanjob

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `<?xml version="1.0" encoding="UTF-8"?>
<analysis xmlns="https://jeremylong.github.io/DependencyCheck/dependency-check.2.0.xsd">
  <dependency>
    <fileName>a.jar</fileName>
    <filePath>/tmp/app.war/WEB-INF/lib/a.jar</filePath>
    <vulnerabilities>
      <vulnerability><name>CVE-2020-0001</name></vulnerability>
      <vulnerability><name>CVE-2020-0002</name></vulnerability>
    </vulnerabilities>
  </dependency>
  <dependency>
    <filePath>/tmp/app.war/WEB-INF/lib/b.jar</filePath>
  </dependency>
  <dependency>
    <filePath>/tmp/app.war/WEB-INF/lib/c.jar</filePath>
    <vulnerabilities>
      <vulnerability><name>CVE-2021-1234</name></vulnerability>
    </vulnerabilities>
  </dependency>
  <dependency>
    <filePath>/tmp/app.war/WEB-INF/lib/d.jar</filePath>
  </dependency>
  <dependency>
    <filePath>/tmp/app.war/WEB-INF/lib/e.jar</filePath>
  </dependency>
</analysis>`

func TestParseReportExtractsDependencies(t *testing.T) {
	deps, err := ParseReport(strings.NewReader(sampleReport))
	require.NoError(t, err)
	require.Len(t, deps, 5)

	vulnerable := 0
	for _, d := range deps {
		if d.Vulnerable {
			vulnerable++
		}
	}
	assert.Equal(t, 2, vulnerable)
	assert.Equal(t, "/tmp/app.war/WEB-INF/lib/a.jar", deps[0].FilePath)
	assert.True(t, deps[0].Vulnerable)
	assert.False(t, deps[1].Vulnerable)
}

func TestParseReportIgnoresNestedDependencies(t *testing.T) {
	report := `<analysis>
  <dependency>
    <filePath>/tmp/app.war/WEB-INF/lib/outer.jar</filePath>
    <relatedDependencies>
      <dependency>
        <filePath>/tmp/app.war/WEB-INF/lib/shaded.jar</filePath>
        <vulnerabilities><vulnerability><name>CVE-2022-0001</name></vulnerability></vulnerabilities>
      </dependency>
    </relatedDependencies>
    <vulnerabilities><vulnerability><name>CVE-2022-0002</name></vulnerability></vulnerabilities>
  </dependency>
  <dependency>
    <filePath>/tmp/app.war/WEB-INF/lib/clean.jar</filePath>
  </dependency>
</analysis>`
	deps, err := ParseReport(strings.NewReader(report))
	require.NoError(t, err)
	require.Len(t, deps, 2, "nested duplicates must not become entries")

	assert.Equal(t, "/tmp/app.war/WEB-INF/lib/outer.jar", deps[0].FilePath)
	assert.True(t, deps[0].Vulnerable, "outer vulnerability after the nested block still counts")
	assert.Equal(t, "/tmp/app.war/WEB-INF/lib/clean.jar", deps[1].FilePath)
	assert.False(t, deps[1].Vulnerable)
}

func TestParseReportIgnoresUnknownElements(t *testing.T) {
	report := `<report><meta><filePath>/outside/dep.jar</filePath></meta>` +
		`<dependency><filePath>/x/a.jar</filePath><evidence>stuff</evidence></dependency></report>`
	deps, err := ParseReport(strings.NewReader(report))
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "/x/a.jar", deps[0].FilePath)
}

func TestParseReportRejectsMalformedXML(t *testing.T) {
	_, err := ParseReport(strings.NewReader("<analysis><dependency>"))
	require.ErrorIs(t, err, ErrReportParse)
}

func TestParseReportEmptyDocument(t *testing.T) {
	deps, err := ParseReport(strings.NewReader(`<analysis/>`))
	require.NoError(t, err)
	assert.Empty(t, deps)
}
