package prompt

const plainText = `Review these system metrics and identify any potential anomalies:

CPU: {{pct .Sample.CPUPercent}}%
Memory: {{pct .Sample.MemoryPercent}}% ({{gb .Sample.MemoryUsedGB}}GB / {{gb .Sample.MemoryTotalGB}}GB)
Number of processes: {{.Sample.ProcessCount}}
Number of CPU cores: {{.Sample.CPUCount}}
{{if .ProcessSummary}}
{{.ProcessSummary}}{{end}}
The response should include:
1. Is this an anomaly? (Yes/No)
2. What are the causes?
3. What actions should be taken?

Be concise and direct.`

const plainPolishText = `Przeanalizuj te metryki systemowe i zidentyfikuj potencjalne anomalie:

CPU: {{pct .Sample.CPUPercent}}%
Pamięć: {{pct .Sample.MemoryPercent}}% ({{gb .Sample.MemoryUsedGB}}GB / {{gb .Sample.MemoryTotalGB}}GB)
Liczba procesów: {{.Sample.ProcessCount}}
Liczba rdzeni CPU: {{.Sample.CPUCount}}
Czas: {{.Timestamp}}
{{if .ProcessSummary}}
{{.ProcessSummary}}{{end}}
Odpowiedź powinna zawierać:
1. Czy to jest anomalia? (Tak/Nie)
2. Jakie są przyczyny wysokiego zużycia?
3. Jakie działania podjąć?
4. Czy grozi to problemami wydajności?

Bądź zwięzły i konkretny.`

const memeText = `Masz przeanalizować stan systemu na podstawie poniższych danych,
ale forma odpowiedzi ma nawiązywać do kultowego polskiego mema „Intel vs AMD – WINCEJ RDZENIUF”.

Dane systemowe:

CPU: {{pct .Sample.CPUPercent}}%
Pamięć: {{pct .Sample.MemoryPercent}}% ({{gb .Sample.MemoryUsedGB}}GB / {{gb .Sample.MemoryTotalGB}}GB)
Liczba procesów: {{.Sample.ProcessCount}}
Liczba rdzeni CPU: {{.Sample.CPUCount}}
{{if .ProcessSummary}}
{{.ProcessSummary}}{{end}}
Twoja odpowiedź ma mieć **dwie części**, napisane po polsku, jedna po drugiej:

---

### 1. Część pierwsza
Napisz rzeczowo, technicznie i profesjonalnie.
Uwzględnij:
- czy to wygląda na anomalię (Tak/Nie)
- prawdopodobne przyczyny
- konkretne rekomendacje

Styl: analityczny, spokojny, jak korporacyjny inżynier skupiony na metrykach i wykresach.

---

### 2. Część druga
Napisz krótkie podsumowanie w stylu kultowego mema „AMD – WINCEJ RDZENIUF”.

Wymagania:
- luźny, memiczny język
- celowe zniekształcenia typu: **„WINCEJ RDZENIUF”, „rdzeń dobry, dużo rdzeni lepsze”, „RDZEŃ → RDZEŃ → RDZEŃ”**
- żart ma odnosić się do realnych danych (np. do liczby rdzeni albo obciążenia CPU)
- przesadzone, śmieszkowe wnioski w stylu „jak coś działa źle → dodaj rdzeni”

---

Zachowaj tę kolejność i nie używaj żadnych nawiasów ani oznaczeń trybów w samej treści odpowiedzi.`
