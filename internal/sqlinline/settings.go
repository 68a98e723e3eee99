package sqlinline

const QSelectSetting = `--sql a60f407b-d052-43a6-aa52-eee36d2ff735
select value_json
from settings
where key = ?
limit 1;
`

const QUpsertSetting = `--sql 863f9b7c-2497-4d6a-acfb-4628d8701963
insert into settings(key, value_json)
values (?, ?)
on conflict(key) do update set value_json = excluded.value_json;
`

const QDeleteSetting = `--sql 306194f1-f267-47f5-9d2e-18a2f6ae2563
delete from settings where key = ?;
`
