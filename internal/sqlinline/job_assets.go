package sqlinline

// QInsertJobAsset is idempotent on (job_id, asset_id, role).
const QInsertJobAsset = `--sql 660d3f92-112a-4eb3-abac-91d1fee20270
insert or ignore into job_assets(job_id, asset_id, role)
values (?, ?, ?);
`

const QListJobAssetsByJob = `--sql aa0c503a-2cc3-43b3-8c82-0dfbee10d984
select job_id, asset_id, role
from job_assets
where job_id = ?
order by rowid asc;
`

const QDeleteJobAsset = `--sql b84e2d60-1a9c-4f57-8e3d-6c0a9b2f5d41
delete from job_assets
where job_id = ? and asset_id = ? and role = ?;
`
